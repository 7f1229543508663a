package importer

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// SyncRepo clones a git repository if it does not exist at localPath,
// or pulls the latest changes if it does.
func SyncRepo(repoURL, localPath string) error {
	_, err := os.Stat(localPath)
	if os.IsNotExist(err) {
		slog.Info("cloning deck repository", "url", repoURL, "path", localPath)
		if _, err := git.PlainClone(localPath, false, &git.CloneOptions{
			URL: repoURL,
		}); err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	slog.Info("pulling deck repository", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}

	if err := worktree.Pull(&git.PullOptions{RemoteName: "origin"}); err != nil &&
		err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	return nil
}

// RepoLocalPath maps a git URL to a stable checkout location under
// baseDir, supporting both https and scp-like ssh URLs.
func RepoLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err == nil && (parsedURL.Scheme == "https" || parsedURL.Scheme == "http") {
		sanitized := strings.TrimSuffix(parsedURL.Path, ".git")
		return filepath.Join(baseDir, parsedURL.Host, sanitized), nil
	}

	if strings.Contains(repoURL, "@") {
		parts := strings.Split(repoURL, ":")
		if len(parts) == 2 {
			hostAndUser := strings.Split(parts[0], "@")
			if len(hostAndUser) == 2 {
				repoPath := strings.TrimSuffix(parts[1], ".git")
				return filepath.Join(baseDir, hostAndUser[1], repoPath), nil
			}
		}
	}

	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
