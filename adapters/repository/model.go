package repository

// the following model is the db row of a rollup metadata

type metadataDBModel struct {
	ID          string
	RollupID    string
	SeqNo       int64
	PrimaryTerm int64
	Status      string
	Document    string
	LastUpdated int64
}

// Schema is the DDL of the metadata table, with %s standing for the table name
const Schema = `CREATE TABLE IF NOT EXISTS %s (
  id VARCHAR(64) NOT NULL,
  rollup_id VARCHAR(255) NOT NULL,
  seq_no BIGINT NOT NULL,
  primary_term BIGINT NOT NULL,
  status VARCHAR(16) NOT NULL,
  document TEXT NOT NULL,
  last_updated BIGINT NOT NULL,
  PRIMARY KEY (id),
  KEY idx_rollup_id_last_updated (rollup_id, last_updated)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
