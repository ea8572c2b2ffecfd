package odoo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kolo/xmlrpc"
)

// Config carries the connection parameters for one Odoo database.
type Config struct {
	URL      string
	Database string
	Username string
	Password string
}

// ErrNotAuthenticated is returned when an object call runs before a
// successful Authenticate.
var ErrNotAuthenticated = errors.New("odoo: session not authenticated")

// Client is what the import pipeline needs from the CRM sink.
type Client interface {
	Authenticate() error
	SearchLeadsByName(name string) ([]int64, error)
	FindOrCreatePartner(name, email, phone string) PartnerResolution
	FindOrCreateTag(name string) (int64, error)
	CreateLead(values map[string]interface{}) (int64, error)
}

// PartnerResolution reports how a company row was matched. Fallback marks a
// sink failure the import tolerates: the lead keeps its textual partner name
// and no partner record is linked.
type PartnerResolution struct {
	ID       int64
	Existing bool
	Email    string
	Phone    string
	Fallback bool
	Err      error
}

// rpcCaller is the slice of the XML-RPC client the session uses.
type rpcCaller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
}

// Session is an authenticated connection against one Odoo database.
type Session struct {
	cfg    Config
	common rpcCaller
	object rpcCaller
	uid    int64
}

var _ Client = (*Session)(nil)

// Dial opens the common and object endpoints. No credentials travel until
// Authenticate is called.
func Dial(cfg Config) (*Session, error) {
	base := strings.TrimRight(cfg.URL, "/")

	common, err := xmlrpc.NewClient(base+"/xmlrpc/2/common", nil)
	if err != nil {
		return nil, fmt.Errorf("dial common endpoint: %w", err)
	}
	object, err := xmlrpc.NewClient(base+"/xmlrpc/2/object", nil)
	if err != nil {
		return nil, fmt.Errorf("dial object endpoint: %w", err)
	}

	return &Session{cfg: cfg, common: common, object: object}, nil
}

// Authenticate resolves the configured credentials to a user ID. It must
// succeed before any model call.
func (s *Session) Authenticate() error {
	var uid int64
	err := s.common.Call("authenticate", []interface{}{
		s.cfg.Database, s.cfg.Username, s.cfg.Password, map[string]interface{}{},
	}, &uid)
	if err != nil {
		return fmt.Errorf("authenticate against %s: %w", s.cfg.Database, err)
	}
	if uid == 0 {
		return fmt.Errorf("authenticate against %s: invalid credentials", s.cfg.Database)
	}
	s.uid = uid
	return nil
}

// executeKw wraps the object endpoint's generic dispatch.
func (s *Session) executeKw(model, method string, args []interface{}, kwargs map[string]interface{}, reply interface{}) error {
	if s.uid == 0 {
		return ErrNotAuthenticated
	}
	callArgs := []interface{}{
		s.cfg.Database, s.uid, s.cfg.Password, model, method, args,
	}
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}
	if err := s.object.Call("execute_kw", callArgs, reply); err != nil {
		return fmt.Errorf("%s.%s: %w", model, method, err)
	}
	return nil
}

// SearchLeadsByName returns the IDs of leads whose name matches exactly.
// The import uses this to suppress duplicates across runs.
func (s *Session) SearchLeadsByName(name string) ([]int64, error) {
	var ids []int64
	err := s.executeKw("crm.lead", "search",
		[]interface{}{[]interface{}{[]interface{}{"name", "=", name}}},
		nil, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FindOrCreatePartner matches a company by name, creating it when absent.
// Contact details from an existing record flow back so the lead can be
// autocompleted. Sink errors degrade to a fallback resolution instead of
// failing the row.
func (s *Session) FindOrCreatePartner(name, email, phone string) PartnerResolution {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return PartnerResolution{Fallback: true, Err: errors.New("empty partner name")}
	}

	var ids []int64
	err := s.executeKw("res.partner", "search",
		[]interface{}{[]interface{}{[]interface{}{"name", "ilike", trimmed}}},
		map[string]interface{}{"limit": 1}, &ids)
	if err != nil {
		return PartnerResolution{Fallback: true, Err: err}
	}

	if len(ids) > 0 {
		resolution := PartnerResolution{ID: ids[0], Existing: true}

		var records []map[string]interface{}
		err := s.executeKw("res.partner", "read",
			[]interface{}{ids, []interface{}{"email", "phone"}},
			nil, &records)
		if err == nil && len(records) > 0 {
			resolution.Email = stringField(records[0], "email")
			resolution.Phone = stringField(records[0], "phone")
		}
		return resolution
	}

	values := map[string]interface{}{
		"name":       trimmed,
		"is_company": true,
	}
	if email != "" {
		values["email"] = email
	}
	if phone != "" {
		values["phone"] = phone
	}

	var id int64
	if err := s.executeKw("res.partner", "create", []interface{}{values}, nil, &id); err != nil {
		return PartnerResolution{Fallback: true, Err: err}
	}
	return PartnerResolution{ID: id}
}

// FindOrCreateTag resolves a crm.tag by exact name, creating it on demand.
func (s *Session) FindOrCreateTag(name string) (int64, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, errors.New("empty tag name")
	}

	var ids []int64
	err := s.executeKw("crm.tag", "search",
		[]interface{}{[]interface{}{[]interface{}{"name", "=", trimmed}}},
		map[string]interface{}{"limit": 1}, &ids)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	var id int64
	err = s.executeKw("crm.tag", "create",
		[]interface{}{map[string]interface{}{"name": trimmed}}, nil, &id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateLead inserts one crm.lead record and returns its ID.
func (s *Session) CreateLead(values map[string]interface{}) (int64, error) {
	var id int64
	if err := s.executeKw("crm.lead", "create", []interface{}{values}, nil, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// stringField reads a string out of a record map. Odoo encodes absent
// values as boolean false, which is skipped.
func stringField(record map[string]interface{}, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}
