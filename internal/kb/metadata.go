package kb

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/finlens-ai/finlens/internal/domain"
)

// Country abbreviations accepted in the COMPANY_COUNTRY_YEAR filename
// convention, matched case-insensitively.
var countryNames = map[string]string{
	"COL": "Colombia",
	"MEX": "México",
	"PER": "Perú",
	"CHL": "Chile",
	"ARG": "Argentina",
	"URY": "Uruguay",
	"PAN": "Panamá",
	"SLV": "El Salvador",
	"BRA": "Brasil",
	"USA": "Estados Unidos",
	"ESP": "España",
}

const fallbackCountry = "No especificado"

// maximum stem length used for the company label when the filename does not
// follow the convention
const fallbackCompanyLen = 12

var yearRun = regexp.MustCompile(`\d{4}`)

// ParseMetadata derives provenance metadata from a document path following
// the COMPANY_COUNTRY_YEAR.pdf convention. Malformed names never fail: they
// degrade to a best-effort label with defaultYear as the fiscal year.
func ParseMetadata(path string, defaultYear int) domain.Metadata {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	meta := domain.Metadata{
		Company: fallbackCompany(stem),
		Country: fallbackCountry,
		Year:    defaultYear,
		Source:  path,
	}

	parts := strings.Split(stem, "_")
	if len(parts) < 3 || parts[0] == "" {
		return meta
	}

	meta.Company = strings.ToUpper(parts[0])
	meta.Country = countryName(parts[1])
	if m := yearRun.FindString(parts[2]); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			meta.Year = y
		}
	}
	return meta
}

func countryName(token string) string {
	if token == "" {
		return fallbackCountry
	}
	if name, ok := countryNames[strings.ToUpper(token)]; ok {
		return name
	}
	return titleCase(token)
}

func fallbackCompany(stem string) string {
	runes := []rune(stem)
	if len(runes) > fallbackCompanyLen {
		runes = runes[:fallbackCompanyLen]
	}
	return strings.ToUpper(string(runes))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
