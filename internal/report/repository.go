package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	CreateVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string) error
	UpdateVideoStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateVideoAnalysis(ctx context.Context, v *Video) error
	UpdateVideoReport(ctx context.Context, id, reportText string) error

	ReplacePhases(ctx context.Context, videoID string, phases []*Phase) error
	GetPhases(ctx context.Context, videoID string) ([]*Phase, error)
	GetPhase(ctx context.Context, videoID string, seq int) (*Phase, error)
	UpdatePhaseDescription(ctx context.Context, videoID string, seq int, description, feedback string) error
	UpdatePhaseKeyFrame(ctx context.Context, videoID string, seq int, frame []byte, keyTimestamp string, keySeconds float64, description string) error

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListQueuedJobs(ctx context.Context) ([]*Job, error)
	GetLatestJobForVideo(ctx context.Context, videoID string) (*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const videoColumns = `id, filename, path, procedure, status, error, duration_s,
	summary, model, latency_s, frames_analyzed, report_text, created_at, updated_at`

func (r *SQLiteRepository) CreateVideo(ctx context.Context, v *Video) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (id, filename, path, procedure, status, duration_s, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Filename, v.Path, v.Procedure, v.Status, v.DurationS,
		v.CreatedAt.Format(time.RFC3339), v.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE id = ?", id)
	return scanVideo(row)
}

func scanVideo(row *sql.Row) (*Video, error) {
	var v Video
	var createdAt, updatedAt string

	err := row.Scan(&v.ID, &v.Filename, &v.Path, &v.Procedure, &v.Status, &v.Error,
		&v.DurationS, &v.Summary, &v.Model, &v.LatencyS, &v.FramesAnalyzed,
		&v.ReportText, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &v, nil
}

func (r *SQLiteRepository) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+videoColumns+" FROM videos ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		var v Video
		var createdAt, updatedAt string
		if err := rows.Scan(&v.ID, &v.Filename, &v.Path, &v.Procedure, &v.Status, &v.Error,
			&v.DurationS, &v.Summary, &v.Model, &v.LatencyS, &v.FramesAnalyzed,
			&v.ReportText, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		videos = append(videos, &v)
	}
	return videos, rows.Err()
}

func (r *SQLiteRepository) DeleteVideo(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateVideoStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, errorMsg, id)
	return err
}

func (r *SQLiteRepository) UpdateVideoAnalysis(ctx context.Context, v *Video) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET status = ?, duration_s = ?, summary = ?, model = ?,
			latency_s = ?, frames_analyzed = ?, updated_at = datetime('now')
		WHERE id = ?
	`, v.Status, v.DurationS, v.Summary, v.Model, v.LatencyS, v.FramesAnalyzed, v.ID)
	return err
}

func (r *SQLiteRepository) UpdateVideoReport(ctx context.Context, id, reportText string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET report_text = ?, updated_at = datetime('now') WHERE id = ?
	`, reportText, id)
	return err
}

const phaseColumns = `video_id, seq, timestamp_range, start_seconds, end_seconds,
	key_timestamp, key_timestamp_seconds, key_frame, description,
	original_description, user_feedback, refined, keyframe_updated`

// ReplacePhases swaps the full phase set for a video in one transaction, so
// a re-analysis never leaves a mix of old and new phases behind.
func (r *SQLiteRepository) ReplacePhases(ctx context.Context, videoID string, phases []*Phase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM phases WHERE video_id = ?", videoID); err != nil {
		return err
	}

	for _, p := range phases {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO phases (`+phaseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, videoID, p.Seq, p.TimestampRange, p.StartSeconds, p.EndSeconds,
			p.KeyTimestamp, p.KeyTimestampSeconds, p.KeyFrame, p.Description,
			p.OriginalDescription, p.UserFeedback, boolToInt(p.Refined), boolToInt(p.KeyframeUpdated)); err != nil {
			return fmt.Errorf("insert phase %d: %w", p.Seq, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) GetPhases(ctx context.Context, videoID string) ([]*Phase, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+phaseColumns+" FROM phases WHERE video_id = ? ORDER BY seq", videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phases []*Phase
	for rows.Next() {
		p, err := scanPhaseRow(rows)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

func (r *SQLiteRepository) GetPhase(ctx context.Context, videoID string, seq int) (*Phase, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+phaseColumns+" FROM phases WHERE video_id = ? AND seq = ?", videoID, seq)

	var p Phase
	var refined, keyframeUpdated int
	err := row.Scan(&p.VideoID, &p.Seq, &p.TimestampRange, &p.StartSeconds, &p.EndSeconds,
		&p.KeyTimestamp, &p.KeyTimestampSeconds, &p.KeyFrame, &p.Description,
		&p.OriginalDescription, &p.UserFeedback, &refined, &keyframeUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Refined = refined == 1
	p.KeyframeUpdated = keyframeUpdated == 1
	return &p, nil
}

func scanPhaseRow(rows *sql.Rows) (*Phase, error) {
	var p Phase
	var refined, keyframeUpdated int
	if err := rows.Scan(&p.VideoID, &p.Seq, &p.TimestampRange, &p.StartSeconds, &p.EndSeconds,
		&p.KeyTimestamp, &p.KeyTimestampSeconds, &p.KeyFrame, &p.Description,
		&p.OriginalDescription, &p.UserFeedback, &refined, &keyframeUpdated); err != nil {
		return nil, err
	}
	p.Refined = refined == 1
	p.KeyframeUpdated = keyframeUpdated == 1
	return &p, nil
}

func (r *SQLiteRepository) UpdatePhaseDescription(ctx context.Context, videoID string, seq int, description, feedback string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE phases SET description = ?, user_feedback = ?, refined = 1
		WHERE video_id = ? AND seq = ?
	`, description, feedback, videoID, seq)
	return err
}

func (r *SQLiteRepository) UpdatePhaseKeyFrame(ctx context.Context, videoID string, seq int, frame []byte, keyTimestamp string, keySeconds float64, description string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE phases SET key_frame = ?, key_timestamp = ?, key_timestamp_seconds = ?,
			description = ?, keyframe_updated = 1
		WHERE video_id = ? AND seq = ?
	`, frame, keyTimestamp, keySeconds, description, videoID, seq)
	return err
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, video_id, type, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.VideoID, j.Type, j.Status, j.Error,
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, video_id, type, status, error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func (r *SQLiteRepository) GetLatestJobForVideo(ctx context.Context, videoID string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, video_id, type, status, error, created_at, updated_at
		FROM jobs WHERE video_id = ? ORDER BY created_at DESC LIMIT 1
	`, videoID)
	return scanJob(row)
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.VideoID, &j.Type, &j.Status, &j.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListQueuedJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, type, status, error, created_at, updated_at
		FROM jobs WHERE status = 'queued' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var j Job
		var createdAt, updatedAt string
		if err := rows.Scan(&j.ID, &j.VideoID, &j.Type, &j.Status, &j.Error, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, errorMsg, id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
