package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- CONNECTION TABLE (durable person records)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS connection SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON connection TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON connection TYPE string DEFAULT 'draft'
        ASSERT $value INSIDE ['draft', 'approved', 'archived'];

    -- Identity scalars carry {value, confidence} pairs.
    DEFINE FIELD IF NOT EXISTS name ON connection FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS company ON connection FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS role ON connection FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS institution ON connection FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS major ON connection FLEXIBLE TYPE option<object>;

    DEFINE FIELD IF NOT EXISTS signature ON connection TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS signature_embedding ON connection TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS past_signatures ON connection TYPE array<string> DEFAULT [];

    DEFINE FIELD IF NOT EXISTS environment_text ON connection TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS headshot_ref ON connection TYPE option<string>;

    DEFINE FIELD IF NOT EXISTS topics ON connection TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS challenges ON connection TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS hooks ON connection TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS personal_facts ON connection TYPE array<string> DEFAULT [];

    DEFINE FIELD IF NOT EXISTS needs_review ON connection TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS encounter_count ON connection TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS created ON connection TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON connection TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS connection_user ON connection FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS connection_status ON connection FIELDS user_id, status;
    DEFINE INDEX IF NOT EXISTS connection_signature_hnsw ON connection
        FIELDS signature_embedding HNSW DIMENSION 384 DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS connection_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS connection_signature_ft ON connection
        FIELDS signature FULLTEXT ANALYZER connection_analyzer BM25;

    -- ==========================================================================
    -- INTERACTION TABLE (append-only encounter log)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS interaction SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS connection_id ON interaction TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON interaction TYPE string;
    DEFINE FIELD IF NOT EXISTS session_id ON interaction TYPE string;
    DEFINE FIELD IF NOT EXISTS event ON interaction TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS location_name ON interaction TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS location_city ON interaction TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS topics ON interaction TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS started_at ON interaction TYPE datetime;
    DEFINE FIELD IF NOT EXISTS ended_at ON interaction TYPE datetime;
    DEFINE FIELD IF NOT EXISTS duration_seconds ON interaction TYPE float;

    DEFINE INDEX IF NOT EXISTS interaction_connection ON interaction FIELDS connection_id;
    DEFINE INDEX IF NOT EXISTS interaction_user ON interaction FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS interaction_started ON interaction FIELDS started_at;
`
