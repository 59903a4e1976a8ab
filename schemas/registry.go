package schemas

import (
	"github.com/ipfs/go-cid"

	"github.com/attestry/attestry/internal/domain"
)

// FieldKind declares the value shape a field accepts.
type FieldKind int

const (
	KindString FieldKind = iota
	KindBool
	KindContentID
	KindStreamRef
	KindRevisionRef
)

type Field struct {
	Name      string
	Kind      FieldKind
	Required  bool
	Immutable bool
}

// Definition is the registry contract for one entity kind. Singleton kinds
// allow exactly one stream per owner; a repeated create becomes an update.
type Definition struct {
	URL       string
	Name      string
	Singleton bool
	Fields    []Field
}

var definitions = map[string]Definition{
	ProfileURL: {
		URL:       ProfileURL,
		Name:      "Profile",
		Singleton: true,
		Fields: []Field{
			{Name: "displayName", Kind: KindString, Required: true},
			{Name: "orcid", Kind: KindString, Required: true},
		},
	},
	ResearchObjectURL: {
		URL:  ResearchObjectURL,
		Name: "ResearchObject",
		Fields: []Field{
			{Name: "title", Kind: KindString, Required: true},
			{Name: "manifest", Kind: KindContentID, Required: true},
		},
	},
	ClaimURL: {
		URL:  ClaimURL,
		Name: "Claim",
		Fields: []Field{
			{Name: "title", Kind: KindString, Required: true},
			{Name: "description", Kind: KindString, Required: true},
			{Name: "badge", Kind: KindContentID},
		},
	},
	AttestationURL: {
		URL:  AttestationURL,
		Name: "Attestation",
		Fields: []Field{
			{Name: "targetID", Kind: KindStreamRef, Required: true, Immutable: true},
			{Name: "targetVersion", Kind: KindRevisionRef, Required: true, Immutable: true},
			{Name: "claimID", Kind: KindStreamRef, Required: true, Immutable: true},
			{Name: "claimVersion", Kind: KindRevisionRef, Required: true, Immutable: true},
			{Name: "revoked", Kind: KindBool},
		},
	},
}

// Get returns the field contract for an entity kind.
func Get(kind string) (Definition, error) {
	def, ok := definitions[kind]
	if !ok {
		return Definition{}, domain.SchemaNotFoundError{Kind: kind}
	}
	return def, nil
}

func (d Definition) field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ValidateCreate checks a full creation payload: every required field must
// be present and every value must match its declared kind.
func (d Definition) ValidateCreate(fields map[string]any) error {
	for _, f := range d.Fields {
		if _, ok := fields[f.Name]; !ok {
			if f.Required {
				return domain.ValidationError{Field: f.Name, Reason: "required field missing"}
			}
			continue
		}
	}
	return d.validateValues(fields)
}

// ValidateUpdate checks a partial payload. Supplied immutable fields are
// rejected; required fields may be absent since prior values carry over.
func (d Definition) ValidateUpdate(fields map[string]any) error {
	for name := range fields {
		f, ok := d.field(name)
		if !ok {
			continue
		}
		if f.Immutable {
			return domain.ImmutableFieldError{Field: name}
		}
	}
	return d.validateValues(fields)
}

func (d Definition) validateValues(fields map[string]any) error {
	for name, value := range fields {
		f, ok := d.field(name)
		if !ok {
			return domain.ValidationError{Field: name, Reason: "unknown field"}
		}
		switch f.Kind {
		case KindString, KindStreamRef, KindRevisionRef:
			s, ok := value.(string)
			if !ok {
				return domain.ValidationError{Field: name, Reason: "expected string"}
			}
			if f.Required && s == "" {
				return domain.ValidationError{Field: name, Reason: "must not be empty"}
			}
		case KindBool:
			if _, ok := value.(bool); !ok {
				return domain.ValidationError{Field: name, Reason: "expected boolean"}
			}
		case KindContentID:
			s, ok := value.(string)
			if !ok {
				return domain.ValidationError{Field: name, Reason: "expected content identifier string"}
			}
			if _, err := cid.Decode(s); err != nil {
				return domain.ValidationError{Field: name, Reason: "invalid content identifier"}
			}
		}
	}
	return nil
}
