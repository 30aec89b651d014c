package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioNotifier_Notify(t *testing.T) {
	fake := &fakeCreator{}
	n := &TwilioNotifier{api: fake, from: "+15550001111", to: "+61400111222"}

	if err := n.Notify(context.Background(), "Review waiting for @lifter"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(fake.params) != 1 {
		t.Fatalf("sent %d messages", len(fake.params))
	}
	p := fake.params[0]
	if *p.To != "+61400111222" || *p.From != "+15550001111" || *p.Body != "Review waiting for @lifter" {
		t.Errorf("params = to %s from %s body %s", *p.To, *p.From, *p.Body)
	}

	long := strings.Repeat("é", smsLimit+20)
	n.Notify(context.Background(), long)
	if got := utf8.RuneCountInString(*fake.params[1].Body); got != smsLimit {
		t.Errorf("truncated body has %d runes, want %d", got, smsLimit)
	}
}

func TestTwilioNotifier_Error(t *testing.T) {
	n := &TwilioNotifier{api: &fakeCreator{err: errors.New("20003")}, from: "+1555", to: "+1666"}
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Error("expected an error")
	}
}

func TestNewTwilioNotifier_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts TwilioOpts
		ok   bool
	}{
		{"missing credentials", TwilioOpts{From: "+15550001111", To: "+61400111222"}, false},
		{"bad from", TwilioOpts{AccountSID: "AC1", AuthToken: "t", From: "12", To: "+61400111222"}, false},
		{"missing coach", TwilioOpts{AccountSID: "AC1", AuthToken: "t", From: "+15550001111"}, false},
		{"valid", TwilioOpts{AccountSID: "AC1", AuthToken: "t", From: "+1 (555) 000-1111", To: "+61 400 111 222"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewTwilioNotifier(tt.opts)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if n.from != "+15550001111" || n.to != "+61400111222" {
					t.Errorf("numbers = %s %s", n.from, n.to)
				}
				return
			}
			if !errors.Is(err, ErrNotConfigured) {
				t.Errorf("err = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestCanonicalPhone(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"+61 400 111 222", "+61400111222", true},
		{"(555) 000-1111", "+5550001111", true},
		{"", "", false},
		{"abc", "", false},
		{"12345", "", false},
	}
	for _, tt := range tests {
		got, err := CanonicalPhone(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("CanonicalPhone(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestMockService(t *testing.T) {
	m := &MockService{}
	m.SendReply(context.Background(), Reply{SubscriberID: "1", Text: "a"})
	m.Notify(context.Background(), "note")
	if len(m.SentReplies()) != 1 || len(m.Notifications()) != 1 {
		t.Errorf("mock = %+v", m)
	}
	m.Err = errors.New("down")
	if err := m.SendReply(context.Background(), Reply{}); err == nil {
		t.Error("Err should be returned")
	}
}
