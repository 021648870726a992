package sandbox

import "testing"

func TestClassify_BlocksPrivateAndLoopback(t *testing.T) {
	blocked := []string{
		"http://localhost/",
		"http://127.0.0.1/",
		"http://0.0.0.0/",
		"http://[::1]/",
		"http://[::]/",
		"http://169.254.169.254/",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://172.16.0.1/",
		"http://172.31.255.255/",
		"http://metadata.google.internal/",
		"http://foo.local/",
		"http://foo.internal/",
		"http://[::ffff:127.0.0.1]/",
		"http://[::ffff:7f00:1]/",
		"http://2130706433/",      // decimal 127.0.0.1
		"http://0x7f000001/",      // hex 127.0.0.1
		"http://017700000001/",    // octal 127.0.0.1
		"http://[fe80::1]/",
		"http://[fc00::1]/",
		"http://[fd12::1]/",
		"ftp://example.com/",
	}
	for _, u := range blocked {
		v := Classify(u)
		if v.Allowed {
			t.Errorf("Classify(%q) = allowed, want denied", u)
		}
	}
}

func TestClassify_AllowsPublicHost(t *testing.T) {
	allowed := []string{
		"https://example.com/",
		"http://8.8.8.8/",
		"https://api.github.com/repos",
	}
	for _, u := range allowed {
		v := Classify(u)
		if !v.Allowed {
			t.Errorf("Classify(%q) = denied (%s), want allowed", u, v.Reason)
		}
	}
}

func TestClassify_CGNATRange(t *testing.T) {
	v := Classify("http://100.64.0.1/")
	if v.Allowed {
		t.Errorf("expected CGNAT range 100.64.0.0/10 to be denied")
	}
	v = Classify("http://100.63.255.255/")
	if !v.Allowed {
		t.Errorf("expected 100.63.255.255 (outside CGNAT range) to be allowed, got denied: %s", v.Reason)
	}
}
