// Package importer loads markdown deck files into the card store,
// either from a local directory or from a git repository that is
// cloned and kept up to date. Each import run is one source, keyed by
// a content hash so unchanged batches are never imported twice.
package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/engine"
)

type Importer struct {
	engine *engine.Engine
	log    *slog.Logger
}

func New(eng *engine.Engine, log *slog.Logger) *Importer {
	return &Importer{engine: eng, log: log}
}

// ImportRepo clones or updates the given git repository under reposDir
// and imports its deck files.
func (im *Importer) ImportRepo(ctx context.Context, scope domain.Scope, repoURL, reposDir string) (int, error) {
	localPath, err := RepoLocalPath(reposDir, repoURL)
	if err != nil {
		return 0, err
	}
	if err := SyncRepo(repoURL, localPath); err != nil {
		return 0, err
	}
	return im.ImportDir(ctx, scope, localPath, repoURL)
}

// ImportDir walks root for .md deck files and imports their entries as
// one source named name. The deck of each card is the file's relative
// path without the extension. It returns the number of cards inserted,
// zero when the identical batch was imported before.
func (im *Importer) ImportDir(ctx context.Context, scope domain.Scope, root, name string) (int, error) {
	var entries []Entry
	var inserts []*engine.CardInsert

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileEntries, err := ParseFile(path)
		if err != nil {
			return err
		}

		deck, err := deckName(root, path)
		if err != nil {
			return err
		}

		for _, e := range fileEntries {
			entries = append(entries, e)
			inserts = append(inserts, &engine.CardInsert{
				Front:    e.Front,
				Back:     e.Back,
				Mnemonic: e.Mnemonic,
				Deck:     deck,
				Source:   name,
			})
		}
		return nil
	})
	if walkErr != nil {
		return 0, walkErr
	}

	if len(inserts) == 0 {
		im.log.Info("no deck entries found", "root", root)
		return 0, nil
	}

	h := Hash(entries)
	exists, err := im.engine.HasSource(ctx, scope, h)
	if err != nil {
		return 0, err
	}
	if exists {
		im.log.Info("source already imported, skipping", "name", name, "hash", h)
		return 0, nil
	}

	for _, c := range inserts {
		c.SH = h
	}

	if _, err := im.engine.InsertMany(ctx, scope, inserts); err != nil {
		return 0, err
	}

	im.log.Info("imported deck files", "name", name, "cards", len(inserts))
	return len(inserts), nil
}

// deckName maps a deck file's location to its deck path: the relative
// path without the .md extension, "/"-delimited on every platform.
func deckName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel), nil
}
