package domain

// Metadata describes the provenance of a knowledge base, derived from the
// COMPANY_COUNTRY_YEAR filename convention of the source document.
type Metadata struct {
	Company string `json:"empresa"`
	Country string `json:"pais"`
	Year    int    `json:"anio"`
	Source  string `json:"fuente"`
}

// Preset is a pre-built comparison target offered on the index page.
type Preset struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Filename string `json:"filename"`
}

// ScoredChunk is a single similarity-search hit.
type ScoredChunk struct {
	Text       string  `json:"text"`
	Index      int     `json:"index"`
	Similarity float64 `json:"similarity"`
}
