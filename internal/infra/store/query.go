package store

import (
	"strings"

	"github.com/bitmapland/indexer/internal/core/domain"
)

// The read API below is what the query layer consumes. All reads are
// linear scans over the current file content; the dataset is small
// relative to its access frequency, so no index is kept.

// Lookup returns the record for one block number.
func (s *Store) Lookup(blockNumber uint64) (domain.BlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return domain.BlockRecord{}, err
	}
	for _, rec := range records {
		if rec.BlockNumber == blockNumber {
			return rec, nil
		}
	}
	return domain.BlockRecord{}, ErrNotFound
}

// Range returns up to count records starting at the given offset in
// stored order.
func (s *Store) Range(offset, count int) ([]domain.BlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= len(records) {
		return []domain.BlockRecord{}, nil
	}
	end := offset + count
	if count <= 0 || end > len(records) {
		end = len(records)
	}
	return records[offset:end], nil
}

// Tail returns the last count records in stored order.
func (s *Store) Tail(count int) ([]domain.BlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if count <= 0 || count > len(records) {
		count = len(records)
	}
	return records[len(records)-count:], nil
}

// Search returns records whose block number or inscription id contains
// the given substring.
func (s *Store) Search(substring string) ([]domain.BlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	matches := []domain.BlockRecord{}
	for _, rec := range records {
		if strings.Contains(rec.InscriptionID, substring) ||
			strings.Contains(formatRow(rec), substring) {
			matches = append(matches, rec)
		}
	}
	return matches, nil
}
