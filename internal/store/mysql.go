package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"arena/internal/contest"
	"arena/pkg/errors"
)

const queryTimeout = 5 * time.Second

// MySQLStore implements Store on a MySQL connection pool. All writes are
// idempotent upserts keyed by (contest_id, participant_id) so repeated
// settles never duplicate rows.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore wraps an open connection pool.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) UpsertContest(ctx context.Context, c *contest.SavedContest) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	taskIDs, err := json.Marshal(c.TaskIDs)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "encode task ids")
	}
	var startTime sql.NullTime
	if !c.StartTime.IsZero() {
		startTime = sql.NullTime{Time: c.StartTime, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contests (id, status, task_ids, duration_minutes, scoring, access_mode, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			start_time = VALUES(start_time)`,
		c.ID, string(c.Status), taskIDs, c.Config.DurationMinutes,
		string(c.Config.Scoring), string(c.Config.Access), startTime)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "upsert contest %s", c.ID)
	}
	return nil
}

func (s *MySQLStore) FetchContest(ctx context.Context, contestID string) (*contest.SavedContest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		saved     contest.SavedContest
		status    string
		taskIDs   []byte
		scoring   string
		access    string
		startTime sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, task_ids, duration_minutes, scoring, access_mode, start_time
		FROM contests WHERE id = ?`, contestID).
		Scan(&saved.ID, &status, &taskIDs, &saved.Config.DurationMinutes, &scoring, &access, &startTime)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.RecordNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch contest %s", contestID)
	}
	if err := json.Unmarshal(taskIDs, &saved.TaskIDs); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "decode task ids for %s", contestID)
	}
	saved.Status = contest.Status(status)
	saved.Config.Scoring = contest.ScoringMode(scoring)
	saved.Config.Access = contest.AccessMode(access)
	if startTime.Valid {
		saved.StartTime = startTime.Time
	}
	return &saved, nil
}

func (s *MySQLStore) UpsertParticipant(ctx context.Context, contestID, participantID string, p *contest.SavedParticipant) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	scores, err := json.Marshal(p.Scores)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "encode scores")
	}
	totalScore := 0
	for _, s := range p.Scores {
		totalScore += s.Score
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contest_results
			(contest_id, participant_id, nickname, organization, total_score, task_scores, disqualified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			organization = VALUES(organization),
			total_score = VALUES(total_score),
			task_scores = VALUES(task_scores),
			disqualified = VALUES(disqualified)`,
		contestID, participantID, p.Nickname, nullIfEmpty(p.Organization),
		totalScore, scores, p.Disqualified)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "upsert participant %s/%s", contestID, participantID)
	}
	return nil
}

func (s *MySQLStore) UpsertSubmissions(ctx context.Context, contestID, participantID string, sources map[int64]string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	encoded, err := json.Marshal(sources)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "encode submissions")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contest_submissions (contest_id, participant_id, task_submissions)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE task_submissions = VALUES(task_submissions)`,
		contestID, participantID, encoded)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "upsert submissions %s/%s", contestID, participantID)
	}
	return nil
}

func (s *MySQLStore) FetchParticipant(ctx context.Context, contestID, participantID string) (*contest.SavedParticipant, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		saved        contest.SavedParticipant
		organization sql.NullString
		scores       []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT nickname, organization, task_scores, disqualified
		FROM contest_results
		WHERE contest_id = ? AND participant_id = ?`, contestID, participantID).
		Scan(&saved.Nickname, &organization, &scores, &saved.Disqualified)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.RecordNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch participant %s/%s", contestID, participantID)
	}
	saved.Organization = organization.String
	if err := json.Unmarshal(scores, &saved.Scores); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "decode scores for %s/%s", contestID, participantID)
	}

	var submissions []byte
	err = s.db.QueryRowContext(ctx, `
		SELECT task_submissions FROM contest_submissions
		WHERE contest_id = ? AND participant_id = ?`, contestID, participantID).
		Scan(&submissions)
	switch err {
	case nil:
		if err := json.Unmarshal(submissions, &saved.LastSubmissions); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "decode submissions for %s/%s", contestID, participantID)
		}
	case sql.ErrNoRows:
		saved.LastSubmissions = make(map[int64]string)
	default:
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch submissions %s/%s", contestID, participantID)
	}
	return &saved, nil
}

func (s *MySQLStore) FetchArchivedResults(ctx context.Context, contestID string) (*ArchivedResults, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var scoring sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT scoring FROM contests WHERE id = ?`, contestID).Scan(&scoring)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch contest %s", contestID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, nickname, organization, task_scores, disqualified
		FROM contest_results WHERE contest_id = ?`, contestID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch results %s", contestID)
	}
	defer rows.Close()

	results := &ArchivedResults{
		ContestID: contestID,
		Scoring:   contest.ScoringMode(scoring.String),
	}
	for rows.Next() {
		var (
			row          ArchivedRow
			organization sql.NullString
			scores       []byte
		)
		if err := rows.Scan(&row.ParticipantID, &row.Nickname, &organization, &scores, &row.Disqualified); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "scan result row")
		}
		row.Organization = organization.String
		if err := json.Unmarshal(scores, &row.Scores); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "decode scores for %s", row.ParticipantID)
		}
		for _, s := range row.Scores {
			row.TotalScore += s.Score
			if s.Passed {
				row.TotalPenalty += s.Penalty
			}
		}
		results.Rows = append(results.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "iterate results %s", contestID)
	}
	if len(results.Rows) == 0 {
		return nil, errors.New(errors.RecordNotFound)
	}
	sortArchivedRows(results)
	return results, nil
}

func (s *MySQLStore) AddWhitelistEntry(ctx context.Context, contestID, nickname, organization, password string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrapf(err, errors.InternalServerError, "hash whitelist password")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contest_whitelist (contest_id, nickname, organization, password_hash)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			organization = VALUES(organization),
			password_hash = VALUES(password_hash)`,
		contestID, nickname, nullIfEmpty(organization), hash)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "add whitelist entry %s/%s", contestID, nickname)
	}
	return nil
}

func (s *MySQLStore) RemoveWhitelistEntry(ctx context.Context, contestID, nickname string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM contest_whitelist WHERE contest_id = ? AND nickname = ?`,
		contestID, nickname)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "remove whitelist entry %s/%s", contestID, nickname)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.RecordNotFound)
	}
	return nil
}

func (s *MySQLStore) ListWhitelist(ctx context.Context, contestID string) ([]contest.WhitelistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nickname, organization FROM contest_whitelist
		WHERE contest_id = ? ORDER BY nickname`, contestID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "list whitelist %s", contestID)
	}
	defer rows.Close()

	var entries []contest.WhitelistEntry
	for rows.Next() {
		var (
			id           int64
			entry        contest.WhitelistEntry
			organization sql.NullString
		)
		if err := rows.Scan(&id, &entry.Nickname, &organization); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "scan whitelist row")
		}
		entry.ID = whitelistParticipantID(id)
		entry.Organization = organization.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "iterate whitelist %s", contestID)
	}
	return entries, nil
}

func (s *MySQLStore) ValidateWhitelist(ctx context.Context, contestID, nickname, password string) (*contest.WhitelistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		id           int64
		organization sql.NullString
		hash         []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization, password_hash FROM contest_whitelist
		WHERE contest_id = ? AND nickname = ?`, contestID, nickname).
		Scan(&id, &organization, &hash)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.WhitelistRejected)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch whitelist entry %s/%s", contestID, nickname)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, errors.New(errors.WhitelistRejected)
	}
	return &contest.WhitelistEntry{
		ID:           whitelistParticipantID(id),
		Nickname:     nickname,
		Organization: organization.String,
	}, nil
}

// whitelistParticipantID derives the stable participant id from the
// whitelist row id, matching closed-mode reconnect semantics.
func whitelistParticipantID(rowID int64) string {
	return "wl-" + strconv.FormatInt(rowID, 10)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
