package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

const defaultBranch = "main"

// Push writes files as a single commit on main and pushes it to cloneURL.
// The repository is assembled in memory, nothing touches the local disk.
func (c *Client) Push(ctx context.Context, cloneURL string, files map[string][]byte, message string) error {
	if len(files) == 0 {
		return errors.New("no files to push")
	}

	repo, err := git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(defaultBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return fmt.Errorf("set head: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := util.WriteFile(wt.Filesystem, p, files[p], 0644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	if _, err := wt.Add("."); err != nil {
		return fmt.Errorf("stage files: %w", err)
	}

	if message == "" {
		message = "Initial commit"
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "eject",
			Email: "deploy@ejectlabs.dev",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{cloneURL},
	}); err != nil {
		return fmt.Errorf("add remote: %w", err)
	}

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		// Any non-empty username works for token auth over https.
		Auth: &githttp.BasicAuth{Username: "eject", Password: c.token},
	})
	if err != nil {
		return fmt.Errorf("push to %s: %w", cloneURL, err)
	}
	return nil
}
