package remoteapi

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/yourdeals/deals-web/services"
)

// flexString accepts a JSON string, number or null. Upstream sends ids as
// either depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// wireUser is the union of user shapes seen across the login and
// personal-data endpoints.
type wireUser struct {
	Token         flexString `json:"token"`
	ID            flexString `json:"id"`
	UserID        flexString `json:"user_id"`
	FullName      flexString `json:"fullName"`
	FullNameSnake flexString `json:"full_name"`
	Email         flexString `json:"email"`
	ImageURL      flexString `json:"imageUrl"`
	ImageURLSnake flexString `json:"image_url"`
	Role          flexString `json:"role"`
}

func (u *wireUser) identity() Identity {
	return Identity{
		UserID:   first(u.ID, u.UserID),
		FullName: first(u.FullName, u.FullNameSnake),
		Email:    string(u.Email),
		ImageURL: first(u.ImageURL, u.ImageURLSnake),
		Role:     string(u.Role),
	}
}

func first(vals ...flexString) string {
	for _, v := range vals {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

type loginEnvelope struct {
	User *wireUser `json:"user"`
}

type personalDataEnvelope struct {
	Data *wireUser `json:"data"`
}

// decodeLogin normalises a 200 body from POST /users/login.
func decodeLogin(body []byte) (*LoginResult, error) {
	var env loginEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, services.ErrUnexpectedShape.Wrap(err)
	}
	if env.User == nil {
		return nil, services.ErrUnexpectedShape.Wrap(nil).WithDetail("missing", "user")
	}
	if env.User.Token == "" {
		return nil, services.ErrUnexpectedShape.Wrap(nil).WithDetail("missing", "user.token")
	}
	return &LoginResult{
		Token:    string(env.User.Token),
		Identity: env.User.identity(),
	}, nil
}

// decodePersonalData normalises a 200 body from GET /users/personal-data.
// A payload that names neither a user id nor an email is rejected.
func decodePersonalData(body []byte) (*Identity, error) {
	var env personalDataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, services.ErrUnexpectedShape.Wrap(err)
	}
	if env.Data == nil {
		return nil, services.ErrUnexpectedShape.Wrap(nil).WithDetail("missing", "data")
	}
	id := env.Data.identity()
	if id.UserID == "" && id.Email == "" {
		return nil, services.ErrUnexpectedShape.Wrap(nil).WithDetail("missing", "data.user_id|data.email")
	}
	return &id, nil
}

// parseDealID reads a deal_id that may arrive as a number or a numeric string.
func parseDealID(raw json.RawMessage) (int64, bool) {
	var f flexString
	if err := json.Unmarshal(raw, &f); err != nil || f == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// AnnotateDealRefs adds a "deal_ref" field next to every deal_id found in a
// listing body, either under data.deals (table-data) or directly in a data
// array (random-top-deals). Bodies of any other shape are returned as is.
func AnnotateDealRefs(body []byte, ref func(int64) (string, error)) ([]byte, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return body, nil
	}
	rawData, ok := env["data"]
	if !ok {
		return body, nil
	}

	var list []map[string]json.RawMessage
	var container map[string]json.RawMessage
	switch {
	case json.Unmarshal(rawData, &list) == nil:
	case json.Unmarshal(rawData, &container) == nil:
		rawDeals, ok := container["deals"]
		if !ok || json.Unmarshal(rawDeals, &list) != nil {
			return body, nil
		}
	default:
		return body, nil
	}

	for _, deal := range list {
		id, ok := parseDealID(deal["deal_id"])
		if !ok {
			continue
		}
		r, err := ref(id)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		deal["deal_ref"] = encoded
	}

	encodedList, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	if container != nil {
		container["deals"] = encodedList
		if rawData, err = json.Marshal(container); err != nil {
			return nil, err
		}
	} else {
		rawData = encodedList
	}
	env["data"] = rawData
	return json.Marshal(env)
}
