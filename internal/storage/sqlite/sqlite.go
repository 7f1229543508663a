// Package sqlite implements the storage.Store interface over an
// embedded relational database. Joins are assembled manually from the
// derived join set; the condition itself is applied in-process by the
// executor, so the queries here stay purely structural.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/storage"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

const timeLayout = time.RFC3339Nano

// DB wraps the SQL connection and implements storage.Store.
type DB struct {
	conn *sql.DB
}

var _ storage.Store = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up
// to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps writes serialized and makes :memory:
	// databases hold their schema across queries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) FindJoined(ctx context.Context, scope domain.Scope, joins storage.JoinSet) ([]*domain.Record, error) {
	selects := []string{
		"c._id", "c.front", "c.back", "c.mnemonic", "c.srsLevel",
		"c.nextReview", "c.created", "c.modified", "c.stat",
	}
	var joinSegments []string

	if joins.Note || joins.Source {
		joinSegments = append(joinSegments, "LEFT JOIN note AS n ON n._id = c.noteId")
		selects = append(selects, "n.key", "n.data")
	}
	if joins.Deck {
		joinSegments = append(joinSegments, "LEFT JOIN deck AS d ON d._id = c.deckId")
		selects = append(selects, "d.name")
	}
	if joins.Source {
		joinSegments = append(joinSegments, "LEFT JOIN source AS s ON s._id = n.sourceId")
		selects = append(selects, "s.name", "s.h", "s.created")
	}
	if joins.Template {
		joinSegments = append(joinSegments, "LEFT JOIN template AS t ON t._id = c.templateId")
		selects = append(selects, "t.name", "t.model", "t.front", "t.back", "t.css", "t.js")
	}

	query := fmt.Sprintf(`
	SELECT %s
	FROM card AS c
	%s
	WHERE c.userId = ?`, strings.Join(selects, ", "), strings.Join(joinSegments, "\n\t"))

	rows, err := db.conn.QueryContext(ctx, query, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query joined cards: %w", err)
	}
	defer rows.Close()

	var recs []*domain.Record
	for rows.Next() {
		var (
			rec                          domain.Record
			back, mnemonic, stat         sql.NullString
			nextReview, created, modTime sql.NullString
			srsLevel                     sql.NullInt64
			nKey, nData                  sql.NullString
			dName                        sql.NullString
			sName, sH, sCreated          sql.NullString
			tName, tModel                sql.NullString
			tFront, tBack, tCSS, tJS     sql.NullString
		)

		dest := []any{
			&rec.ID, &rec.Front, &back, &mnemonic, &srsLevel,
			&nextReview, &created, &modTime, &stat,
		}
		if joins.Note || joins.Source {
			dest = append(dest, &nKey, &nData)
		}
		if joins.Deck {
			dest = append(dest, &dName)
		}
		if joins.Source {
			dest = append(dest, &sName, &sH, &sCreated)
		}
		if joins.Template {
			dest = append(dest, &tName, &tModel, &tFront, &tBack, &tCSS, &tJS)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan joined card row: %w", err)
		}

		rec.Back = back.String
		rec.Mnemonic = mnemonic.String
		if srsLevel.Valid {
			lvl := int(srsLevel.Int64)
			rec.SrsLevel = &lvl
		}
		rec.NextReview = parseTimePtr(nextReview)
		rec.Created = parseTimePtr(created)
		rec.Modified = parseTimePtr(modTime)
		if stat.Valid && stat.String != "" {
			var st domain.Stat
			if err := json.Unmarshal([]byte(stat.String), &st); err == nil {
				rec.Stat = &st
			}
		}
		rec.Key = nKey.String
		if nData.Valid && nData.String != "" {
			if err := json.Unmarshal([]byte(nData.String), &rec.Data); err != nil {
				return nil, fmt.Errorf("failed to decode note data for card %s: %w", rec.ID, err)
			}
		}
		rec.Deck = dName.String
		rec.Source = sName.String
		rec.SH = sH.String
		rec.SCreated = parseTimePtr(sCreated)
		rec.Template = tName.String
		rec.Model = tModel.String
		rec.TFront = tFront.String
		rec.TBack = tBack.String
		rec.CSS = tCSS.String
		rec.JS = tJS.String

		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate joined cards: %w", err)
	}

	if err := db.attachTags(ctx, scope, recs); err != nil {
		return nil, err
	}

	return recs, nil
}

// attachTags loads the tag sets for every card in one pass. Tags live
// in link tables, so they cannot ride along on the main join.
func (db *DB) attachTags(ctx context.Context, scope domain.Scope, recs []*domain.Record) error {
	if len(recs) == 0 {
		return nil
	}

	rows, err := db.conn.QueryContext(ctx, `
	SELECT ct.cardId, t.name
	FROM cardTag AS ct
	INNER JOIN tag AS t ON t._id = ct.tagId
	WHERE t.userId = ?`, scope.UserID)
	if err != nil {
		return fmt.Errorf("failed to query card tags: %w", err)
	}
	defer rows.Close()

	byCard := map[string][]string{}
	for rows.Next() {
		var cardID, name string
		if err := rows.Scan(&cardID, &name); err != nil {
			return fmt.Errorf("failed to scan card tag row: %w", err)
		}
		byCard[cardID] = append(byCard[cardID], name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate card tags: %w", err)
	}

	for _, rec := range recs {
		rec.Tag = byCard[rec.ID]
	}
	return nil
}

func (db *DB) CountCards(ctx context.Context, scope domain.Scope) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM card WHERE userId = ?`, scope.UserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

func (db *DB) CardByID(ctx context.Context, scope domain.Scope, id string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT _id, deckId, templateId, noteId, front, back, mnemonic,
	       srsLevel, nextReview, created, modified, stat
	FROM card WHERE _id = ? AND userId = ?`, id, scope.UserID)

	var (
		c                            domain.Card
		templateID, noteID           sql.NullString
		back, mnemonic, stat         sql.NullString
		nextReview, created, modTime sql.NullString
		srsLevel                     sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.DeckID, &templateID, &noteID, &c.Front, &back,
		&mnemonic, &srsLevel, &nextReview, &created, &modTime, &stat)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card %s: %w", id, err)
	}

	c.UserID = scope.UserID
	c.TemplateID = templateID.String
	c.NoteID = noteID.String
	c.Back = back.String
	c.Mnemonic = mnemonic.String
	if srsLevel.Valid {
		lvl := int(srsLevel.Int64)
		c.SrsLevel = &lvl
	}
	c.NextReview = parseTimePtr(nextReview)
	if t := parseTimePtr(created); t != nil {
		c.Created = *t
	}
	c.Modified = parseTimePtr(modTime)
	if stat.Valid && stat.String != "" {
		var st domain.Stat
		if err := json.Unmarshal([]byte(stat.String), &st); err == nil {
			c.Stat = &st
		}
	}

	tags, err := db.tagsForCard(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	c.Tag = tags

	return &c, nil
}

func (db *DB) tagsForCard(ctx context.Context, scope domain.Scope, cardID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT t.name
	FROM tag AS t
	INNER JOIN cardTag AS ct ON ct.tagId = t._id
	WHERE ct.cardId = ? AND t.userId = ?`, cardID, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func (db *DB) InsertCards(ctx context.Context, scope domain.Scope, cards []*domain.Card) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cards {
		var stat any
		if c.Stat != nil {
			b, err := json.Marshal(c.Stat)
			if err != nil {
				return fmt.Errorf("failed to encode stat for card %s: %w", c.ID, err)
			}
			stat = string(b)
		}

		_, err := tx.ExecContext(ctx, `
		INSERT INTO card (_id, userId, deckId, templateId, noteId, front, back,
		                  mnemonic, srsLevel, nextReview, created, modified, stat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, scope.UserID, c.DeckID, nullStr(c.TemplateID), nullStr(c.NoteID),
			c.Front, nullStr(c.Back), nullStr(c.Mnemonic), nullInt(c.SrsLevel),
			nullTime(c.NextReview), c.Created.Format(timeLayout),
			nullTime(c.Modified), stat)
		if err != nil {
			return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
		}

		if err := setTagsTx(ctx, tx, scope, c.ID, c.Tag); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit card insert: %w", err)
	}
	return nil
}

func setTagsTx(ctx context.Context, tx *sql.Tx, scope domain.Scope, cardID string, tags []string) error {
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO tag (_id, userId, name) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`, uuid.NewString(), scope.UserID, t); err != nil {
			return fmt.Errorf("failed to insert tag %s: %w", t, err)
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO cardTag (cardId, tagId)
		VALUES (?, (SELECT _id FROM tag WHERE userId = ? AND name = ?))
		ON CONFLICT DO NOTHING`, cardID, scope.UserID, t); err != nil {
			return fmt.Errorf("failed to link tag %s: %w", t, err)
		}
	}
	return nil
}

func (db *DB) UpdateCard(ctx context.Context, scope domain.Scope, id string, u storage.CardUpdate) error {
	sets := []string{"modified = ?"}
	args := []any{u.Modified.Format(timeLayout)}

	appendSet := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if u.Front != nil {
		appendSet("front", *u.Front)
	}
	if u.Back != nil {
		appendSet("back", *u.Back)
	}
	if u.Mnemonic != nil {
		appendSet("mnemonic", *u.Mnemonic)
	}
	if u.DeckID != nil {
		appendSet("deckId", *u.DeckID)
	}
	if u.NoteID != nil {
		appendSet("noteId", *u.NoteID)
	}
	if u.SrsLevel != nil {
		appendSet("srsLevel", *u.SrsLevel)
	}
	if u.NextReview != nil {
		appendSet("nextReview", u.NextReview.Format(timeLayout))
	}
	if u.Stat != nil {
		b, err := json.Marshal(u.Stat)
		if err != nil {
			return fmt.Errorf("failed to encode stat for card %s: %w", id, err)
		}
		appendSet("stat", string(b))
	}

	query := fmt.Sprintf(`UPDATE card SET %s WHERE _id = ? AND userId = ?`,
		strings.Join(sets, ", "))
	args = append(args, id, scope.UserID)

	if u.Guard != nil {
		// IS matches NULL against NULL, which a plain = would not.
		query += " AND modified IS ?"
		args = append(args, nullTime(u.Guard.Modified))
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for card %s: %w", id, err)
	}
	if n == 0 {
		if _, err := db.CardByID(ctx, scope, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}

	if u.Tag != nil {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin tag transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cardTag WHERE cardId = ?`, id); err != nil {
			return fmt.Errorf("failed to clear tags for card %s: %w", id, err)
		}
		if err := setTagsTx(ctx, tx, scope, id, *u.Tag); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit tag update: %w", err)
		}
	}

	return nil
}

func (db *DB) DeleteCards(ctx context.Context, scope domain.Scope, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, scope.UserID)

	// cardTag rows follow via ON DELETE CASCADE; the scoped delete is
	// the only statement, so ids of other users' cards touch nothing.
	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM card WHERE _id IN (%s) AND userId = ?`, placeholders(len(ids))),
		args...); err != nil {
		return fmt.Errorf("failed to delete cards: %w", err)
	}
	return nil
}

func (db *DB) AddTags(ctx context.Context, scope domain.Scope, ids, tags []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tag transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Format(timeLayout)
	for _, id := range ids {
		if err := setTagsTx(ctx, tx, scope, id, tags); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE card SET modified = ? WHERE _id = ? AND userId = ?`,
			now, id, scope.UserID); err != nil {
			return fmt.Errorf("failed to touch card %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tag add: %w", err)
	}
	return nil
}

func (db *DB) RemoveTags(ctx context.Context, scope domain.Scope, ids, tags []string) error {
	if len(ids) == 0 || len(tags) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tag transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Format(timeLayout)
	for _, id := range ids {
		args := []any{id}
		for _, t := range tags {
			args = append(args, t)
		}
		args = append(args, scope.UserID)

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM cardTag
		WHERE cardId = ? AND tagId IN (
		    SELECT _id FROM tag WHERE name IN (%s) AND userId = ?
		)`, placeholders(len(tags))), args...); err != nil {
			return fmt.Errorf("failed to remove tags from card %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE card SET modified = ? WHERE _id = ? AND userId = ?`,
			now, id, scope.UserID); err != nil {
			return fmt.Errorf("failed to touch card %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tag removal: %w", err)
	}
	return nil
}

func (db *DB) GetOrCreateDeck(ctx context.Context, scope domain.Scope, name string) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`SELECT _id FROM deck WHERE userId = ? AND name = ?`,
		scope.UserID, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to find deck %s: %w", name, err)
	}

	id = uuid.NewString()
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO deck (_id, userId, name) VALUES (?, ?, ?)`,
		id, scope.UserID, name); err != nil {
		return "", fmt.Errorf("failed to create deck %s: %w", name, err)
	}
	return id, nil
}

func (db *DB) SourceByHash(ctx context.Context, scope domain.Scope, h string) (*domain.Source, error) {
	var (
		s       domain.Source
		created string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT _id, name, h, created FROM source WHERE userId = ? AND h = ?`,
		scope.UserID, h).Scan(&s.ID, &s.Name, &s.H, &created)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find source by hash %s: %w", h, err)
	}
	s.UserID = scope.UserID
	if t, err := time.Parse(timeLayout, created); err == nil {
		s.Created = t
	}
	return &s, nil
}

func (db *DB) InsertSource(ctx context.Context, scope domain.Scope, s *domain.Source) error {
	if _, err := db.SourceByHash(ctx, scope, s.H); err == nil {
		return storage.ErrDuplicate
	}

	if _, err := db.conn.ExecContext(ctx, `
	INSERT INTO source (_id, userId, name, h, created)
	VALUES (?, ?, ?, ?, ?)`,
		s.ID, scope.UserID, s.Name, s.H, s.Created.Format(timeLayout)); err != nil {
		return fmt.Errorf("failed to insert source %s: %w", s.Name, err)
	}
	return nil
}

func (db *DB) FindTemplate(ctx context.Context, scope domain.Scope, name, model string) (*domain.Template, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT _id, sourceId, name, model, front, back, css, js
	FROM template WHERE userId = ? AND name = ? AND model = ?`,
		scope.UserID, name, model)
	return scanTemplate(row, scope)
}

func (db *DB) TemplateByID(ctx context.Context, scope domain.Scope, id string) (*domain.Template, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT _id, sourceId, name, model, front, back, css, js
	FROM template WHERE userId = ? AND _id = ?`, scope.UserID, id)
	return scanTemplate(row, scope)
}

func scanTemplate(row *sql.Row, scope domain.Scope) (*domain.Template, error) {
	var (
		t                              domain.Template
		sourceID, model, back, css, js sql.NullString
	)
	err := row.Scan(&t.ID, &sourceID, &t.Name, &model, &t.Front, &back, &css, &js)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	t.UserID = scope.UserID
	t.SourceID = sourceID.String
	t.Model = model.String
	t.Back = back.String
	t.CSS = css.String
	t.JS = js.String
	return &t, nil
}

func (db *DB) InsertTemplate(ctx context.Context, scope domain.Scope, t *domain.Template) error {
	if _, err := db.conn.ExecContext(ctx, `
	INSERT INTO template (_id, userId, sourceId, name, model, front, back, css, js)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, scope.UserID, nullStr(t.SourceID), t.Name, nullStr(t.Model),
		t.Front, nullStr(t.Back), nullStr(t.CSS), nullStr(t.JS)); err != nil {
		return fmt.Errorf("failed to insert template %s: %w", t.Name, err)
	}
	return nil
}

func (db *DB) UpdateTemplate(ctx context.Context, scope domain.Scope, id string, patch storage.TemplatePatch) error {
	var sets []string
	var args []any
	appendSet := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	appendSet("front", patch.Front)
	appendSet("back", patch.Back)
	appendSet("css", patch.CSS)
	appendSet("js", patch.JS)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id, scope.UserID)

	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(
		`UPDATE template SET %s WHERE _id = ? AND userId = ?`,
		strings.Join(sets, ", ")), args...); err != nil {
		return fmt.Errorf("failed to update template %s: %w", id, err)
	}
	return nil
}

func (db *DB) NoteByKey(ctx context.Context, scope domain.Scope, key string) (*domain.Note, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT _id, sourceId, key, data FROM note WHERE userId = ? AND key = ?`,
		scope.UserID, key)
	return scanNote(row, scope)
}

func (db *DB) NoteByID(ctx context.Context, scope domain.Scope, id string) (*domain.Note, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT _id, sourceId, key, data FROM note WHERE userId = ? AND _id = ?`,
		scope.UserID, id)
	return scanNote(row, scope)
}

func scanNote(row *sql.Row, scope domain.Scope) (*domain.Note, error) {
	var (
		n             domain.Note
		sourceID, key sql.NullString
		data          string
	)
	err := row.Scan(&n.ID, &sourceID, &key, &data)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}
	n.UserID = scope.UserID
	n.SourceID = sourceID.String
	n.Key = key.String
	if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
		return nil, fmt.Errorf("failed to decode data for note %s: %w", n.ID, err)
	}
	return &n, nil
}

func (db *DB) InsertNote(ctx context.Context, scope domain.Scope, n *domain.Note) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode data for note %s: %w", n.Key, err)
	}

	if _, err := db.conn.ExecContext(ctx, `
	INSERT INTO note (_id, userId, sourceId, key, data)
	VALUES (?, ?, ?, ?, ?)`,
		n.ID, scope.UserID, nullStr(n.SourceID), nullStr(n.Key), string(data)); err != nil {
		return fmt.Errorf("failed to insert note %s: %w", n.Key, err)
	}
	return nil
}

func (db *DB) UpdateNoteData(ctx context.Context, scope domain.Scope, id string, data []domain.NoteData) error {
	n, err := db.NoteByID(ctx, scope, id)
	if err != nil {
		return err
	}

	merged := mergeNoteData(n.Data, data)
	b, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode data for note %s: %w", id, err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE note SET data = ? WHERE _id = ? AND userId = ?`,
		string(b), id, scope.UserID); err != nil {
		return fmt.Errorf("failed to update note %s: %w", id, err)
	}
	return nil
}

// mergeNoteData overwrites existing keys in place and appends new keys
// at the end, preserving the display order.
func mergeNoteData(existing, patch []domain.NoteData) []domain.NoteData {
	out := make([]domain.NoteData, len(existing))
	copy(out, existing)

	for _, p := range patch {
		replaced := false
		for i := range out {
			if out[i].Key == p.Key {
				out[i].Value = p.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

func (db *DB) InsertMedia(ctx context.Context, scope domain.Scope, m *domain.Media) error {
	if _, err := db.MediaByHash(ctx, scope, m.H); err == nil {
		return storage.ErrDuplicate
	}

	if _, err := db.conn.ExecContext(ctx, `
	INSERT INTO media (_id, userId, sourceId, name, data, h)
	VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, scope.UserID, nullStr(m.SourceID), m.Name, m.Data, m.H); err != nil {
		return fmt.Errorf("failed to insert media %s: %w", m.Name, err)
	}
	return nil
}

func (db *DB) MediaByHash(ctx context.Context, scope domain.Scope, h string) (*domain.Media, error) {
	var (
		m        domain.Media
		sourceID sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
	SELECT _id, sourceId, name, data, h FROM media WHERE userId = ? AND h = ?`,
		scope.UserID, h).Scan(&m.ID, &sourceID, &m.Name, &m.Data, &m.H)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find media by hash %s: %w", h, err)
	}
	m.UserID = scope.UserID
	m.SourceID = sourceID.String
	return &m, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
