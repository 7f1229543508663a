package sqlite

const schema = `
-- One row per deck path; decks are created on first reference.
CREATE TABLE IF NOT EXISTS deck (
    _id     TEXT PRIMARY KEY,
    userId  TEXT NOT NULL,
    name    TEXT NOT NULL,

    UNIQUE (userId, name)
);

-- Import batches. h is the content hash that blocks re-imports.
CREATE TABLE IF NOT EXISTS source (
    _id     TEXT PRIMARY KEY,
    userId  TEXT NOT NULL,
    name    TEXT NOT NULL,
    h       TEXT NOT NULL,
    created TEXT NOT NULL,

    UNIQUE (userId, h)
);

CREATE TABLE IF NOT EXISTS template (
    _id      TEXT PRIMARY KEY,
    userId   TEXT NOT NULL,
    sourceId TEXT REFERENCES source(_id),
    name     TEXT NOT NULL,
    model    TEXT,
    front    TEXT NOT NULL,
    back     TEXT,
    css      TEXT,
    js       TEXT,

    UNIQUE (userId, sourceId, name, model)
);

-- data is a JSON array of {key, value} pairs; the array order is the
-- display order.
CREATE TABLE IF NOT EXISTS note (
    _id      TEXT PRIMARY KEY,
    userId   TEXT NOT NULL,
    sourceId TEXT REFERENCES source(_id),
    key      TEXT,
    data     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS media (
    _id      TEXT PRIMARY KEY,
    userId   TEXT NOT NULL,
    sourceId TEXT REFERENCES source(_id),
    name     TEXT NOT NULL,
    data     BLOB NOT NULL,
    h        TEXT NOT NULL,

    UNIQUE (userId, h)
);

CREATE TABLE IF NOT EXISTS card (
    _id        TEXT PRIMARY KEY,
    userId     TEXT NOT NULL,
    deckId     TEXT NOT NULL REFERENCES deck(_id),
    templateId TEXT REFERENCES template(_id),
    noteId     TEXT REFERENCES note(_id),
    front      TEXT NOT NULL,
    back       TEXT,
    mnemonic   TEXT,
    srsLevel   INTEGER,
    nextReview TEXT,
    created    TEXT NOT NULL,
    modified   TEXT,
    stat       TEXT -- JSON
);

CREATE INDEX IF NOT EXISTS idx_card_user ON card(userId);

CREATE TABLE IF NOT EXISTS tag (
    _id    TEXT PRIMARY KEY,
    userId TEXT NOT NULL,
    name   TEXT NOT NULL,

    UNIQUE (userId, name)
);

CREATE TABLE IF NOT EXISTS cardTag (
    cardId TEXT NOT NULL REFERENCES card(_id) ON DELETE CASCADE,
    tagId  TEXT NOT NULL REFERENCES tag(_id) ON DELETE CASCADE,

    PRIMARY KEY (cardId, tagId)
);
`
