package store

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"arena/internal/contest"
	"arena/pkg/errors"
)

// MemoryStore is a map-backed Store for tests and single-node development.
// Values are deep-copied through JSON on the way in and out so callers
// never share state with the store.
type MemoryStore struct {
	mu           sync.Mutex
	contests     map[string][]byte
	participants map[string][]byte
	submissions  map[string][]byte
	whitelist    map[string]memoryWhitelistEntry
	nextWLID     int64
}

type memoryWhitelistEntry struct {
	id           int64
	organization string
	password     string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contests:     make(map[string][]byte),
		participants: make(map[string][]byte),
		submissions:  make(map[string][]byte),
		whitelist:    make(map[string]memoryWhitelistEntry),
		nextWLID:     1,
	}
}

func memKey(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key += "/" + p
	}
	return key
}

func (s *MemoryStore) UpsertContest(ctx context.Context, c *contest.SavedContest) error {
	encoded, err := json.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "encode contest")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[c.ID] = encoded
	return nil
}

func (s *MemoryStore) FetchContest(ctx context.Context, contestID string) (*contest.SavedContest, error) {
	s.mu.Lock()
	encoded, ok := s.contests[contestID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New(errors.RecordNotFound)
	}
	var saved contest.SavedContest
	if err := json.Unmarshal(encoded, &saved); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "decode contest")
	}
	return &saved, nil
}

func (s *MemoryStore) UpsertParticipant(ctx context.Context, contestID, participantID string, p *contest.SavedParticipant) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "encode participant")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[memKey(contestID, participantID)] = encoded
	return nil
}

func (s *MemoryStore) UpsertSubmissions(ctx context.Context, contestID, participantID string, sources map[int64]string) error {
	encoded, err := json.Marshal(sources)
	if err != nil {
		return errors.Wrapf(err, errors.DatabaseError, "encode submissions")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[memKey(contestID, participantID)] = encoded
	return nil
}

func (s *MemoryStore) FetchParticipant(ctx context.Context, contestID, participantID string) (*contest.SavedParticipant, error) {
	s.mu.Lock()
	encoded, ok := s.participants[memKey(contestID, participantID)]
	submissions := s.submissions[memKey(contestID, participantID)]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New(errors.RecordNotFound)
	}
	var saved contest.SavedParticipant
	if err := json.Unmarshal(encoded, &saved); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "decode participant")
	}
	if submissions != nil {
		if err := json.Unmarshal(submissions, &saved.LastSubmissions); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "decode submissions")
		}
	}
	if saved.LastSubmissions == nil {
		saved.LastSubmissions = make(map[int64]string)
	}
	return &saved, nil
}

func (s *MemoryStore) FetchArchivedResults(ctx context.Context, contestID string) (*ArchivedResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scoring contest.ScoringMode
	if encoded, ok := s.contests[contestID]; ok {
		var saved contest.SavedContest
		if err := json.Unmarshal(encoded, &saved); err == nil {
			scoring = saved.Config.Scoring
		}
	}

	results := &ArchivedResults{ContestID: contestID, Scoring: scoring}
	prefix := contestID + "/"
	for key, encoded := range s.participants {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		var saved contest.SavedParticipant
		if err := json.Unmarshal(encoded, &saved); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "decode participant")
		}
		row := ArchivedRow{
			ParticipantID: key[len(prefix):],
			Nickname:      saved.Nickname,
			Organization:  saved.Organization,
			Scores:        saved.Scores,
			Disqualified:  saved.Disqualified,
		}
		for _, score := range saved.Scores {
			row.TotalScore += score.Score
			if score.Passed {
				row.TotalPenalty += score.Penalty
			}
		}
		results.Rows = append(results.Rows, row)
	}
	if len(results.Rows) == 0 {
		return nil, errors.New(errors.RecordNotFound)
	}
	sortArchivedRows(results)
	return results, nil
}

func (s *MemoryStore) AddWhitelistEntry(ctx context.Context, contestID, nickname, organization, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(contestID, nickname)
	entry, exists := s.whitelist[key]
	if !exists {
		entry.id = s.nextWLID
		s.nextWLID++
	}
	entry.organization = organization
	entry.password = password
	s.whitelist[key] = entry
	return nil
}

func (s *MemoryStore) RemoveWhitelistEntry(ctx context.Context, contestID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(contestID, nickname)
	if _, ok := s.whitelist[key]; !ok {
		return errors.New(errors.RecordNotFound)
	}
	delete(s.whitelist, key)
	return nil
}

func (s *MemoryStore) ListWhitelist(ctx context.Context, contestID string) ([]contest.WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := contestID + "/"
	var entries []contest.WhitelistEntry
	for key, entry := range s.whitelist {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		entries = append(entries, contest.WhitelistEntry{
			ID:           "wl-" + strconv.FormatInt(entry.id, 10),
			Nickname:     key[len(prefix):],
			Organization: entry.organization,
		})
	}
	return entries, nil
}

func (s *MemoryStore) ValidateWhitelist(ctx context.Context, contestID, nickname, password string) (*contest.WhitelistEntry, error) {
	s.mu.Lock()
	entry, ok := s.whitelist[memKey(contestID, nickname)]
	s.mu.Unlock()
	if !ok || entry.password != password {
		return nil, errors.New(errors.WhitelistRejected)
	}
	return &contest.WhitelistEntry{
		ID:           "wl-" + strconv.FormatInt(entry.id, 10),
		Nickname:     nickname,
		Organization: entry.organization,
	}, nil
}

var _ Store = (*MemoryStore)(nil)
