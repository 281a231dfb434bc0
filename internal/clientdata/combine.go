package clientdata

import (
	"strings"

	"formrunner/internal/config"
)

// IdeographicSpace joins Japanese name parts the way forms expect.
const IdeographicSpace = "　"

// Combiner assembles unified field values from a client record.
type Combiner struct {
	client config.Client
}

// NewCombiner wraps a client record.
func NewCombiner(client config.Client) *Combiner {
	return &Combiner{client: client}
}

// FullName is `last　first` with an ideographic space.
func (c *Combiner) FullName() string {
	return joinName(c.client.LastName, c.client.FirstName)
}

// FullKana is the katakana variant of the full name.
func (c *Combiner) FullKana() string {
	return joinName(c.client.LastNameKana, c.client.FirstNameKana)
}

// FullHiragana is the hiragana variant of the full name.
func (c *Combiner) FullHiragana() string {
	return joinName(c.client.LastNameHiragana, c.client.FirstNameHiragana)
}

// Email prefers the unified value; otherwise local@domain from the split.
func (c *Combiner) Email() string {
	if c.client.Email != "" {
		return c.client.Email
	}
	if c.client.Email1 == "" || c.client.Email2 == "" {
		return ""
	}
	return c.client.Email1 + "@" + c.client.Email2
}

// Phone prefers the unified value; otherwise direct concatenation.
func (c *Combiner) Phone() string {
	if c.client.Phone != "" {
		return c.client.Phone
	}
	return c.client.Phone1 + c.client.Phone2 + c.client.Phone3
}

// PhoneHyphenated joins the split parts with hyphens; used only when the
// target input's placeholder shows a hyphenated example.
func (c *Combiner) PhoneHyphenated() string {
	if c.client.Phone1 == "" {
		return c.client.Phone
	}
	parts := []string{c.client.Phone1, c.client.Phone2, c.client.Phone3}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "-")
}

// Postal is the direct concatenation of the split postal code.
func (c *Combiner) Postal() string {
	return c.client.Postal1 + c.client.Postal2
}

// PostalHyphenated renders `123-4567` when the placeholder suggests it.
func (c *Combiner) PostalHyphenated() string {
	if c.client.Postal1 == "" || c.client.Postal2 == "" {
		return c.Postal()
	}
	return c.client.Postal1 + "-" + c.client.Postal2
}

// Address concatenates parts 1-4, then an ideographic space and part 5 when
// a building name is present.
func (c *Combiner) Address() string {
	base := c.client.Address1 + c.client.Address2 + c.client.Address3 + c.client.Address4
	if c.client.Address5 != "" {
		return base + IdeographicSpace + c.client.Address5
	}
	return base
}

// AddressAfterPrefecture is the address with part 1 stripped, for forms that
// carry a separate prefecture select.
func (c *Combiner) AddressAfterPrefecture() string {
	base := c.client.Address2 + c.client.Address3 + c.client.Address4
	if c.client.Address5 != "" {
		return base + IdeographicSpace + c.client.Address5
	}
	return base
}

// ValueFor resolves a canonical field to its client value. Unified fields go
// through the combination rules above. Unknown fields yield "".
func (c *Combiner) ValueFor(field string) string {
	switch CanonicalName(field) {
	case FieldLastName:
		return c.client.LastName
	case FieldFirstName:
		return c.client.FirstName
	case FieldFullName:
		return c.FullName()
	case FieldLastKana:
		return c.client.LastNameKana
	case FieldFirstKana:
		return c.client.FirstNameKana
	case FieldFullKana:
		return c.FullKana()
	case FieldLastHira:
		return c.client.LastNameHiragana
	case FieldFirstHira:
		return c.client.FirstNameHiragana
	case FieldFullHira:
		return c.FullHiragana()
	case FieldCompany:
		return c.client.CompanyName
	case FieldCompanyKana:
		return c.client.CompanyNameKana
	case FieldEmail, FieldEmailConfirm:
		return c.Email()
	case FieldEmail1:
		return c.client.Email1
	case FieldEmail2:
		return c.client.Email2
	case FieldPhone:
		return c.Phone()
	case FieldPhone1:
		return c.client.Phone1
	case FieldPhone2:
		return c.client.Phone2
	case FieldPhone3:
		return c.client.Phone3
	case FieldPostal:
		return c.Postal()
	case FieldPostal1:
		return c.client.Postal1
	case FieldPostal2:
		return c.client.Postal2
	case FieldAddress:
		return c.Address()
	case FieldPrefecture:
		return c.client.Address1
	case FieldCity:
		return c.client.Address2
	case FieldStreet:
		return c.client.Address3 + c.client.Address4
	case FieldBuilding:
		return c.client.Address5
	case FieldDepartment:
		return c.client.Department
	case FieldPosition:
		return c.client.Position
	case FieldGender:
		return c.client.Gender
	case FieldURL:
		return c.client.URL
	}
	return ""
}

func joinName(last, first string) string {
	if last == "" && first == "" {
		return ""
	}
	if last == "" {
		return first
	}
	if first == "" {
		return last
	}
	return last + IdeographicSpace + first
}
