// Package promotion copies a reviewed staging document over the live one,
// keeping a timestamped backup of whatever it replaces.
package promotion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"docsync/internal/apperr"
)

const backupStamp = "2006-01-02-150405"

// Result describes one promotion.
type Result struct {
	StagingPath string    `json:"staging_path"`
	LivePath    string    `json:"live_path"`
	BackupPath  string    `json:"backup_path,omitempty"` // empty when there was no live document
	PromotedAt  time.Time `json:"promoted_at"`
}

type Promoter struct {
	backupDir string
	now       func() time.Time
}

// New returns a promoter writing backups under backupDir.
func New(backupDir string) *Promoter {
	return &Promoter{backupDir: backupDir, now: time.Now}
}

// Promote copies stagingPath to livePath. An existing live document is first
// copied to <backupDir>/<YYYY-MM-DD-HHMMSS>-<name>.
func (p *Promoter) Promote(stagingPath, livePath string) (*Result, error) {
	if _, err := os.Stat(stagingPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindPromotion,
				"staging document not found: %s\ngenerate staging first: docsync generate-doc %s", stagingPath, livePath)
		}
		return nil, apperr.Wrap(apperr.KindPromotion, err)
	}

	now := p.now()
	res := &Result{StagingPath: stagingPath, LivePath: livePath, PromotedAt: now}

	if _, err := os.Stat(livePath); err == nil {
		backup := filepath.Join(p.backupDir, now.Format(backupStamp)+"-"+filepath.Base(livePath))
		if err := copyFile(livePath, backup); err != nil {
			return nil, apperr.Wrap(apperr.KindPromotion, fmt.Errorf("backup %s: %w", livePath, err))
		}
		res.BackupPath = backup
	}

	if err := copyFile(stagingPath, livePath); err != nil {
		return nil, apperr.Wrap(apperr.KindPromotion, fmt.Errorf("promote %s: %w", stagingPath, err))
	}
	return res, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
