package identity

import "encoding/json"

type emailAddress struct {
	id    string
	email string
}

// candidate holds the shape-independent fields pulled out of a payload.
type candidate struct {
	id             string
	addresses      []emailAddress
	primaryEmailID string
	primaryEmail   string
	givenName      string
	familyName     string
	fullName       string
	username       string
	avatarURL      string
	metadataRole   string
	version        int64
}

type variant interface {
	shape() Shape
	matches(fields map[string]json.RawMessage) bool
	decode(raw json.RawMessage) (candidate, error)
}

func hasAny(fields map[string]json.RawMessage, keys ...string) bool {
	for _, key := range keys {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// webhookVariant is the provider's snake_case user object.
type webhookVariant struct{}

type webhookUser struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddress          string `json:"email_address"`
	Email                 string `json:"email"`
	PrimaryEmail          string `json:"primary_email"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	ImageURL              string `json:"image_url"`
	ProfileImageURL       string `json:"profile_image_url"`
	UpdatedAt             int64  `json:"updated_at"`
	PublicMetadata        struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

func (webhookVariant) shape() Shape { return ShapeWebhook }

func (webhookVariant) matches(fields map[string]json.RawMessage) bool {
	return hasAny(fields, "id")
}

func (webhookVariant) decode(raw json.RawMessage) (candidate, error) {
	var u webhookUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return candidate{}, err
	}
	c := candidate{
		id:             u.ID,
		primaryEmailID: u.PrimaryEmailAddressID,
		primaryEmail:   firstNonEmpty(u.EmailAddress, u.Email, u.PrimaryEmail),
		givenName:      u.FirstName,
		familyName:     u.LastName,
		avatarURL:      firstNonEmpty(u.ImageURL, u.ProfileImageURL),
		metadataRole:   u.PublicMetadata.Role,
		version:        u.UpdatedAt,
	}
	for _, addr := range u.EmailAddresses {
		c.addresses = append(c.addresses, emailAddress{id: addr.ID, email: addr.EmailAddress})
	}
	return c, nil
}

// sdkVariant is the camelCase user object returned by provider SDKs.
type sdkVariant struct{}

type sdkUser struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"emailAddress"`
	} `json:"emailAddresses"`
	PrimaryEmailAddressID string `json:"primaryEmailAddressId"`
	PrimaryEmailAddress   *struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"primaryEmailAddress"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	ImageURL       string `json:"imageUrl"`
	UpdatedAt      int64  `json:"updatedAt"`
	PublicMetadata struct {
		Role string `json:"role"`
	} `json:"publicMetadata"`
}

func (sdkVariant) shape() Shape { return ShapeSDK }

func (sdkVariant) matches(fields map[string]json.RawMessage) bool {
	return hasAny(fields, "id") &&
		hasAny(fields, "emailAddresses", "primaryEmailAddressId", "firstName", "lastName", "imageUrl", "publicMetadata")
}

func (sdkVariant) decode(raw json.RawMessage) (candidate, error) {
	var u sdkUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return candidate{}, err
	}
	c := candidate{
		id:             u.ID,
		primaryEmailID: u.PrimaryEmailAddressID,
		givenName:      u.FirstName,
		familyName:     u.LastName,
		avatarURL:      u.ImageURL,
		metadataRole:   u.PublicMetadata.Role,
		version:        u.UpdatedAt,
	}
	if u.PrimaryEmailAddress != nil {
		c.primaryEmail = u.PrimaryEmailAddress.EmailAddress
	}
	for _, addr := range u.EmailAddresses {
		c.addresses = append(c.addresses, emailAddress{id: addr.ID, email: addr.EmailAddress})
	}
	return c, nil
}

// flatVariant is the pre-flattened payload posted by the legacy sync client.
type flatVariant struct{}

type flatUser struct {
	ClerkID  string `json:"clerkId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
	Role     string `json:"role"`
}

func (flatVariant) shape() Shape { return ShapeFlat }

func (flatVariant) matches(fields map[string]json.RawMessage) bool {
	return hasAny(fields, "clerkId")
}

func (flatVariant) decode(raw json.RawMessage) (candidate, error) {
	var u flatUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return candidate{}, err
	}
	return candidate{
		id:           u.ClerkID,
		primaryEmail: u.Email,
		fullName:     u.Name,
		avatarURL:    u.ImageURL,
		metadataRole: u.Role,
	}, nil
}
