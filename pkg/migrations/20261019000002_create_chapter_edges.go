package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		// chapter_id is the dependent chapter, predecessor_id must precede it.
		// Keying on all three columns allows several predecessors per chapter.
		_, err := db.Exec(`
			CREATE TABLE chapter_edges (
				course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
				chapter_id INTEGER NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
				predecessor_id INTEGER NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (course_id, chapter_id, predecessor_id)
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Index for successor lookups
		_, err = db.Exec(`CREATE INDEX ix_chapter_edges_predecessor_id ON chapter_edges(predecessor_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS chapter_edges")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
