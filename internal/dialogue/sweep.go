package dialogue

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ReferenceChecker сообщает, что файл прикреплён к сохранённому заказу или сообщению.
type ReferenceChecker func(ctx context.Context, relativePath string) (bool, error)

// SweepAttachments удаляет вложения старше cutoff, которые не принадлежат ни
// живому черновику, ни сохранённым данным. Черновик с истёкшим TTL пропадает
// из Store без уведомления, и его файл остаётся только здесь.
func (d *Dialogue) SweepAttachments(ctx context.Context, cutoff time.Time, referenced ReferenceChecker) (int, error) {
	paths, err := d.attachments.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		keep, err := d.attachmentInUse(ctx, path, referenced)
		if err != nil {
			d.log.WithError(err).WithField("path", path).Warn("attachment sweep: check failed")
			continue
		}
		if keep {
			continue
		}

		if err := d.attachments.Delete(ctx, path); err != nil {
			d.log.WithError(err).WithField("path", path).Warn("attachment sweep: delete failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		d.log.WithFields(logrus.Fields{
			"removed": removed,
			"checked": len(paths),
		}).Info("orphaned attachments removed")
	}
	return removed, nil
}

func (d *Dialogue) attachmentInUse(ctx context.Context, path string, referenced ReferenceChecker) (bool, error) {
	owner, ok := attachmentOwner(path)
	if !ok {
		// Не наш формат пути, не трогаем.
		return true, nil
	}

	// В личном чате id диалога совпадает с id пользователя.
	s, err := d.Active(ctx, owner)
	if err != nil {
		return false, err
	}
	if s != nil && s.FilePath != nil && *s.FilePath == path {
		return true, nil
	}

	return referenced(ctx, path)
}

// attachmentOwner извлекает id пользователя из пути вида "<user>/<file>".
func attachmentOwner(path string) (int64, bool) {
	dir, _, ok := strings.Cut(filepath.ToSlash(path), "/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(dir, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
