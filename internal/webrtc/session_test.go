package webrtc

import "testing"

func TestParseStreamPath(t *testing.T) {
	cases := []struct {
		path     string
		prefix   string
		wantApp  string
		wantName string
		wantOK   bool
	}{
		{"/whip/live/stream1", "whip", "live", "stream1", true},
		{"/whep/live/stream1", "whep", "live", "stream1", true},
		{"/whip/live", "whip", "", "", false},
		{"/whip/", "whip", "", "", false},
		{"/whip/live/nested/name", "whip", "live", "nested/name", true},
	}
	for _, c := range cases {
		app, name, ok := parseStreamPath(c.path, c.prefix)
		if ok != c.wantOK || app != c.wantApp || name != c.wantName {
			t.Errorf("parseStreamPath(%q, %q) = (%q, %q, %v), want (%q, %q, %v)",
				c.path, c.prefix, app, name, ok, c.wantApp, c.wantName, c.wantOK)
		}
	}
}

func TestSessionRegistry(t *testing.T) {
	reg := newSessionRegistry()
	var torndown bool
	sess := reg.add(nil, func() { torndown = true })

	if got := reg.remove(sess.id); got == nil {
		t.Fatal("expected session to be found")
	}
	if reg.remove(sess.id) != nil {
		t.Fatal("expected second removal to return nil")
	}

	sess2 := reg.add(nil, func() { torndown = true })
	sess3 := reg.remove(sess2.id)
	sess3.unregister()
	if !torndown {
		t.Fatal("expected unregister callback to run")
	}
}
