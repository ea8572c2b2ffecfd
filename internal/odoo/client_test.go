package odoo

import (
	"errors"
	"reflect"
	"testing"
)

type stubCaller struct {
	callFn func(method string, args interface{}, reply interface{}) error
	calls  []stubCall
}

type stubCall struct {
	method string
	args   interface{}
}

func (s *stubCaller) Call(method string, args interface{}, reply interface{}) error {
	s.calls = append(s.calls, stubCall{method: method, args: args})
	return s.callFn(method, args, reply)
}

func setReply(reply, value interface{}) {
	reflect.ValueOf(reply).Elem().Set(reflect.ValueOf(value))
}

func authenticatedSession(object *stubCaller) *Session {
	return &Session{
		cfg:    Config{URL: "https://odoo.test", Database: "db", Username: "u", Password: "p"},
		object: object,
		uid:    7,
	}
}

func TestAuthenticate(t *testing.T) {
	common := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		if method != "authenticate" {
			t.Errorf("method = %q", method)
		}
		params, ok := args.([]interface{})
		if !ok || len(params) != 4 {
			t.Fatalf("args = %#v", args)
		}
		if params[0] != "db" || params[1] != "u" || params[2] != "p" {
			t.Errorf("credential params = %v", params[:3])
		}
		setReply(reply, int64(42))
		return nil
	}}

	s := &Session{cfg: Config{Database: "db", Username: "u", Password: "p"}, common: common}
	if err := s.Authenticate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.uid != 42 {
		t.Errorf("uid = %d, want 42", s.uid)
	}
}

func TestAuthenticateRejected(t *testing.T) {
	common := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		setReply(reply, int64(0))
		return nil
	}}
	s := &Session{cfg: Config{Database: "db"}, common: common}
	if err := s.Authenticate(); err == nil {
		t.Fatal("expected error for uid 0")
	}
}

func TestCallsRequireAuthentication(t *testing.T) {
	s := &Session{cfg: Config{}, object: &stubCaller{}}
	_, err := s.SearchLeadsByName("x")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestSearchLeadsByName(t *testing.T) {
	object := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		params := args.([]interface{})
		if params[3] != "crm.lead" || params[4] != "search" {
			t.Errorf("model/method = %v %v", params[3], params[4])
		}
		domain := params[5].([]interface{})[0].([]interface{})[0].([]interface{})
		if domain[0] != "name" || domain[1] != "=" || domain[2] != "Licitación - LP-1" {
			t.Errorf("domain = %v", domain)
		}
		setReply(reply, []int64{11, 12})
		return nil
	}}

	s := authenticatedSession(object)
	ids, err := s.SearchLeadsByName("Licitación - LP-1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []int64{11, 12}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestFindOrCreatePartnerExisting(t *testing.T) {
	object := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		params := args.([]interface{})
		switch params[4] {
		case "search":
			setReply(reply, []int64{33})
		case "read":
			setReply(reply, []map[string]interface{}{
				{"email": "contacto@alcaldia.gov.co", "phone": false},
			})
		default:
			t.Errorf("unexpected method %v", params[4])
		}
		return nil
	}}

	s := authenticatedSession(object)
	resolution := s.FindOrCreatePartner("ALCALDIA", "", "")
	if resolution.Fallback {
		t.Fatalf("unexpected fallback: %v", resolution.Err)
	}
	if resolution.ID != 33 || !resolution.Existing {
		t.Errorf("resolution = %+v", resolution)
	}
	if resolution.Email != "contacto@alcaldia.gov.co" {
		t.Errorf("Email = %q", resolution.Email)
	}
	if resolution.Phone != "" {
		t.Errorf("Phone = %q, want empty for boolean false", resolution.Phone)
	}
}

func TestFindOrCreatePartnerCreates(t *testing.T) {
	object := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		params := args.([]interface{})
		switch params[4] {
		case "search":
			setReply(reply, []int64{})
		case "create":
			values := params[5].([]interface{})[0].(map[string]interface{})
			if values["name"] != "GOBERNACION" || values["is_company"] != true {
				t.Errorf("values = %v", values)
			}
			if values["email"] != "info@gob.co" {
				t.Errorf("email = %v", values["email"])
			}
			setReply(reply, int64(55))
		}
		return nil
	}}

	s := authenticatedSession(object)
	resolution := s.FindOrCreatePartner("GOBERNACION", "info@gob.co", "")
	if resolution.Fallback {
		t.Fatalf("unexpected fallback: %v", resolution.Err)
	}
	if resolution.ID != 55 || resolution.Existing {
		t.Errorf("resolution = %+v", resolution)
	}
}

func TestFindOrCreatePartnerFallback(t *testing.T) {
	object := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		return errors.New("connection reset")
	}}

	s := authenticatedSession(object)
	resolution := s.FindOrCreatePartner("ALCALDIA", "", "")
	if !resolution.Fallback {
		t.Fatal("expected fallback resolution")
	}
	if resolution.Err == nil {
		t.Error("fallback without cause")
	}
}

func TestFindOrCreateTag(t *testing.T) {
	object := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		params := args.([]interface{})
		switch params[4] {
		case "search":
			setReply(reply, []int64{})
		case "create":
			setReply(reply, int64(9))
		}
		return nil
	}}

	s := authenticatedSession(object)
	id, err := s.FindOrCreateTag("CONSTRUCCIÓN")
	if err != nil {
		t.Fatal(err)
	}
	if id != 9 {
		t.Errorf("id = %d, want 9", id)
	}
}

func TestCreateLead(t *testing.T) {
	object := &stubCaller{callFn: func(method string, args interface{}, reply interface{}) error {
		params := args.([]interface{})
		if params[3] != "crm.lead" || params[4] != "create" {
			t.Errorf("model/method = %v %v", params[3], params[4])
		}
		values := params[5].([]interface{})[0].(map[string]interface{})
		if values["name"] != "Licitación - LP-1" {
			t.Errorf("values = %v", values)
		}
		setReply(reply, int64(101))
		return nil
	}}

	s := authenticatedSession(object)
	id, err := s.CreateLead(map[string]interface{}{"name": "Licitación - LP-1"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 101 {
		t.Errorf("id = %d, want 101", id)
	}
}
