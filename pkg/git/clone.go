package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CloneRepository shallow-clones a git repository holding the CDK app into
// destDir, or into a new temp directory when destDir is empty.
func CloneRepository(ctx context.Context, repoURL, destDir string, log logrus.FieldLogger) (string, error) {
	if destDir == "" {
		tmpDir, err := os.MkdirTemp("", "cdk-drift-report-*")
		if err != nil {
			return "", errors.Wrap(err, "failed to create temp directory")
		}
		destDir = tmpDir
	}

	repoName := strings.TrimSuffix(filepath.Base(repoURL), ".git")
	clonePath := filepath.Join(destDir, repoName)

	log.WithField("repo", repoURL).WithField("path", clonePath).Info("Cloning repository")
	_, err := git.PlainCloneContext(ctx, clonePath, false, &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to clone repository")
	}

	return clonePath, nil
}

// CleanupRepository removes the cloned repository directory
func CleanupRepository(path string) error {
	return os.RemoveAll(path)
}

// HeadCommit returns the abbreviated commit the work tree at path is on.
// A path outside any repository yields an empty string.
func HeadCommit(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err == git.ErrRepositoryNotExists {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to open repository")
	}

	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve HEAD")
	}
	return head.Hash().String()[:7], nil
}
