package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/coopledger/backoffice/internal/models"
)

// DuplicateService flags journal entries that look like double postings:
// same day, reference, journal type, and member, with an identical multiset
// of (account, debit, credit) lines. Detection only; remediation is an
// explicit reversal by an operator.
type DuplicateService struct {
	db *sql.DB
}

func NewDuplicateService(db *sql.DB) *DuplicateService {
	return &DuplicateService{db: db}
}

type DuplicatePair struct {
	Original  models.JournalEntry `json:"original"`
	Duplicate models.JournalEntry `json:"duplicate"`
}

// identityKey is the day-truncated date, reference, journal type, and member
// (NULL when absent).
func identityKey(e models.JournalEntry) string {
	member := "NULL"
	if e.MemberID != nil {
		member = *e.MemberID
	}
	return strings.Join([]string{
		e.EntryDate.Format("2006-01-02"),
		e.ReferenceName,
		e.JournalType,
		member,
	}, "|")
}

// contentHash renders the items sorted by account id as
// accountId:debit(2dp):credit(2dp) joined. Two entries match only when the
// full line set matches exactly.
func contentHash(items []models.JournalItem) string {
	sorted := make([]models.JournalItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AccountID < sorted[j].AccountID
	})

	parts := make([]string, 0, len(sorted))
	for _, item := range sorted {
		parts = append(parts, item.AccountID+":"+item.Debit.StringFixed(2)+":"+item.Credit.StringFixed(2))
	}
	return strings.Join(parts, "|")
}

// pairDuplicates makes a single pass over entries in posting order. The
// first entry seen under a combined key is canonical; every later match
// pairs against it, never against another duplicate.
func pairDuplicates(entries []models.JournalEntry) []DuplicatePair {
	seen := make(map[string]int)
	pairs := []DuplicatePair{}
	for i, entry := range entries {
		key := identityKey(entry) + "::" + contentHash(entry.Items)
		first, ok := seen[key]
		if !ok {
			seen[key] = i
			continue
		}
		pairs = append(pairs, DuplicatePair{Original: entries[first], Duplicate: entry})
	}
	return pairs
}

// FindDuplicates scans all entries dated within [start, end].
func (ds *DuplicateService) FindDuplicates(ctx context.Context, start, end time.Time) ([]DuplicatePair, error) {
	rows, err := ds.db.QueryContext(ctx, `
		SELECT entry_id, entry_date, reference_name, journal_type, member_id
		FROM journal_entries
		WHERE entry_date >= $1 AND entry_date <= $2
		ORDER BY entry_date, entry_id`, dateOnly(start), dateOnly(end))
	if err != nil {
		return nil, storeErr("duplicate scan query", err)
	}
	defer rows.Close()

	entries := []models.JournalEntry{}
	entryIDs := []string{}
	index := make(map[string]int)
	for rows.Next() {
		var entry models.JournalEntry
		var memberID sql.NullString
		if err := rows.Scan(&entry.EntryID, &entry.EntryDate, &entry.ReferenceName, &entry.JournalType, &memberID); err != nil {
			return nil, storeErr("duplicate scan", err)
		}
		if memberID.Valid {
			entry.MemberID = &memberID.String
		}
		index[entry.EntryID] = len(entries)
		entries = append(entries, entry)
		entryIDs = append(entryIDs, entry.EntryID)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("duplicate rows", err)
	}
	if len(entries) == 0 {
		return []DuplicatePair{}, nil
	}

	itemRows, err := ds.db.QueryContext(ctx, `
		SELECT item_id, entry_id, account_id, debit, credit
		FROM journal_items
		WHERE entry_id = ANY($1)
		ORDER BY entry_id, account_id`, pq.Array(entryIDs))
	if err != nil {
		return nil, storeErr("duplicate items query", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item models.JournalItem
		if err := itemRows.Scan(&item.ItemID, &item.EntryID, &item.AccountID, &item.Debit, &item.Credit); err != nil {
			return nil, storeErr("duplicate items scan", err)
		}
		if i, ok := index[item.EntryID]; ok {
			entries[i].Items = append(entries[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, storeErr("duplicate items rows", err)
	}

	return pairDuplicates(entries), nil
}
