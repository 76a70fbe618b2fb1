package store

import (
	"database/sql"
	"fmt"
)

const jobColumns = `id, chat_id, chat_title, topic_id, req_limit, offset_id, min_id, max_id,
	state, downloaded, indexed, total, parse_errors, error, started_at, finished_at`

// InsertJob records a newly started job. Inserting an existing ID is a no-op.
func (db *DB) InsertJob(j *Job) error {
	_, err := db.Exec(`
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		j.ID, j.ChatID, j.ChatTitle, j.TopicID, j.Limit, j.OffsetID, j.MinID, j.MaxID,
		j.State, j.Downloaded, j.Indexed, j.Total, j.ParseErrors, j.Error, j.StartedAt, j.FinishedAt)
	return err
}

// FinishJob stores the final state of a job and replaces its log. The job row
// is created if its start was never recorded.
func (db *DB) FinishJob(j *Job, lines []LogLine) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_title = CASE WHEN excluded.chat_title = '' THEN jobs.chat_title ELSE excluded.chat_title END,
			state = excluded.state,
			downloaded = excluded.downloaded,
			indexed = excluded.indexed,
			total = excluded.total,
			parse_errors = excluded.parse_errors,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		j.ID, j.ChatID, j.ChatTitle, j.TopicID, j.Limit, j.OffsetID, j.MinID, j.MaxID,
		j.State, j.Downloaded, j.Indexed, j.Total, j.ParseErrors, j.Error, j.StartedAt, j.FinishedAt); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM job_log WHERE job_id = ?`, j.ID); err != nil {
		return fmt.Errorf("clear job log: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO job_log (job_id, seq, kind, text, at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare log insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, l := range lines {
		if _, err := stmt.Exec(j.ID, l.Seq, l.Kind, l.Text, l.At); err != nil {
			return fmt.Errorf("insert log line %d: %w", l.Seq, err)
		}
	}

	return tx.Commit()
}

// ListJobs returns the most recent jobs first. limit <= 0 means 50.
func (db *DB) ListJobs(limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+jobColumns+` FROM jobs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// GetJob returns a job and its log. A missing job yields nil, nil, nil.
// id may be a unique prefix of the full job ID.
func (db *DB) GetJob(id string) (*Job, []LogLine, error) {
	rows, err := db.Query(`SELECT `+jobColumns+` FROM jobs WHERE id = ? OR id LIKE ? || '%' LIMIT 2`, id, id)
	if err != nil {
		return nil, nil, err
	}
	var matches []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			_ = rows.Close()
			return nil, nil, err
		}
		matches = append(matches, j)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var j *Job
	switch len(matches) {
	case 0:
		return nil, nil, nil
	case 1:
		j = matches[0]
	default:
		for _, m := range matches {
			if m.ID == id {
				j = m
			}
		}
		if j == nil {
			return nil, nil, fmt.Errorf("job id %q is ambiguous", id)
		}
	}

	lines, err := db.jobLog(j.ID)
	if err != nil {
		return nil, nil, err
	}
	return j, lines, nil
}

func (db *DB) jobLog(id string) ([]LogLine, error) {
	rows, err := db.Query(`SELECT seq, kind, text, at FROM job_log WHERE job_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []LogLine
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.Seq, &l.Kind, &l.Text, &l.At); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// PruneJobs keeps the newest keep jobs and deletes the rest with their logs.
func (db *DB) PruneJobs(keep int) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM jobs WHERE id NOT IN (
			SELECT id FROM jobs ORDER BY started_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*Job, error) {
	var (
		j        Job
		topicID  sql.NullInt64
		finished sql.NullInt64
	)
	err := r.Scan(&j.ID, &j.ChatID, &j.ChatTitle, &topicID, &j.Limit, &j.OffsetID, &j.MinID, &j.MaxID,
		&j.State, &j.Downloaded, &j.Indexed, &j.Total, &j.ParseErrors, &j.Error, &j.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if topicID.Valid {
		j.TopicID = &topicID.Int64
	}
	if finished.Valid {
		j.FinishedAt = &finished.Int64
	}
	return &j, nil
}
