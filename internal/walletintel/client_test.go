package walletintel

import "testing"

func TestWalletStats_EmptyCookieDegradesToFalse(t *testing.T) {
	c := New("")
	stats, ok := c.WalletStats("Addr1")
	if ok {
		t.Fatalf("expected an absent cookie to degrade to ok=false")
	}
	if stats.Address != "" || stats.Profit30dUSD != 0 || stats.Tags != nil {
		t.Errorf("expected the zero value on a degraded fetch, got %+v", stats)
	}
}

func TestTopBuyers_EmptyCookieDegradesToNil(t *testing.T) {
	c := New("")
	buyers := c.TopBuyers("MintA", 10)
	if buyers != nil {
		t.Errorf("expected an absent cookie to degrade to a nil slice, got %v", buyers)
	}
}

func TestHeaders_IncludesCookieAndRefererWhenSet(t *testing.T) {
	c := &Client{cookie: "sess=abc"}
	h := c.headers("https://gmgn.ai/token/MintA")
	if got := h["cookie"]; len(got) != 1 || got[0] != "sess=abc" {
		t.Errorf("expected the cookie header to be set, got %v", got)
	}
	if got := h["origin"]; len(got) != 1 || got[0] != "https://gmgn.ai" {
		t.Errorf("expected origin to be set alongside a referer, got %v", got)
	}
}

func TestHeaders_OmitsCookieWhenUnset(t *testing.T) {
	c := &Client{}
	h := c.headers("")
	if _, ok := h["cookie"]; ok {
		t.Errorf("expected no cookie header without a session cookie")
	}
}
