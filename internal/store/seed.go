package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wolfeidau/leadpool/internal/models"
	"gopkg.in/yaml.v3"
)

// SeedCompany is one company entry in a seed file.
type SeedCompany struct {
	Name     string              `yaml:"name"`
	Contacts []string            `yaml:"contacts"`
	DealURLs []string            `yaml:"deal_urls"`
	Phones   []models.PhoneEntry `yaml:"phones"`
	Emails   []models.EmailEntry `yaml:"emails"`
}

// SeedFile is the YAML fixture used to populate an empty company pool in development.
//
//	companies:
//	  - name: Acme Co
//	    contacts: [Jane Doe]
//	    phones:
//	      - phone: "+1 555 0100"
//	        sources: [https://acme.example/contact]
type SeedFile struct {
	Companies []SeedCompany `yaml:"companies"`
}

// LoadSeed decodes a seed file. Unknown keys are rejected so typos surface early.
func LoadSeed(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed SeedFile
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}

	for i, c := range seed.Companies {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("seed company %d: name is required", i)
		}
	}

	return &seed, nil
}

// Apply inserts every seed company as unclaimed and returns how many were created.
func (f *SeedFile) Apply(ctx context.Context, companies CompanyStore) (int, error) {
	for i, c := range f.Companies {
		company := &models.Company{
			Name:     c.Name,
			Contacts: c.Contacts,
			DealURLs: c.DealURLs,
			Phones:   c.Phones,
			Emails:   c.Emails,
		}
		if err := companies.CreateCompany(ctx, company); err != nil {
			return i, fmt.Errorf("failed to create company %q: %w", c.Name, err)
		}
	}
	return len(f.Companies), nil
}
