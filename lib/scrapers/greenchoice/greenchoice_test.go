package greenchoice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"greenchoice-scraper/lib/telemetry"
	"greenchoice-scraper/lib/timezone"

	"github.com/stretchr/testify/require"
)

const (
	testUsername = "jan@example.com"
	testPassword = "hunter2"
	testToken    = "b84d3f2e1cf04cd3"
)

const loginPageHtml = `<!DOCTYPE html>
<html>
<body>
	<form method="post" action="/Account/Login">
		<input type="hidden" name="__RequestVerificationToken" value="` + testToken + `" />
		<input name="Username" />
		<input type="password" name="Password" />
	</form>
</body>
</html>`

const oidcPageHtml = `<!DOCTYPE html>
<html>
<body>
	<form method="post" action="/signin-oidc">
		<input type="hidden" name="code" value="auth-code-1" />
		<input type="hidden" name="scope" value="openid profile offline_access" />
		<input type="hidden" name="state" value="state-1" />
		<input type="hidden" name="session_state" value="session-state-1" />
	</form>
</body>
</html>`

// portal plays the customer portal and its identity provider: a login form
// guarded by a verification token, an oidc handoff that mints the session
// cookie, and the api surface behind it.
type portal struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	sessions map[string]bool
	logins   int

	gasSupply   bool
	gasContract bool
	hasRates    bool
}

func newPortal(t *testing.T) *portal {
	p := &portal{
		t:           t,
		sessions:    map[string]bool{},
		gasSupply:   true,
		gasContract: true,
		hasRates:    true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if p.authed(r) {
			fmt.Fprint(w, "<html><body>dashboard</body></html>")
			return
		}
		http.Redirect(w, r, "/connect/authorize?client_id=mijn", http.StatusFound)
	})
	mux.HandleFunc("GET /connect/authorize", func(w http.ResponseWriter, r *http.Request) {
		returnUrl := url.QueryEscape("/connect/authorize/callback?client_id=mijn")
		http.Redirect(w, r, "/Account/Login?ReturnUrl="+returnUrl, http.StatusFound)
	})
	mux.HandleFunc("GET /Account/Login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginPageHtml)
	})
	mux.HandleFunc("POST /Account/Login", p.handleLogin)
	mux.HandleFunc("POST /signin-oidc", p.handleSigninOidc)

	mux.HandleFunc("GET /api/v2/Preferences/", p.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture(t, "preferences.json"))
	}))
	mux.HandleFunc("GET /api/v2/Profiles/", p.requireAuth(p.handleProfiles))
	mux.HandleFunc(
		"GET /api/v2/customers/{customer}/agreements/{agreement}/meter-readings/{year}/",
		p.requireAuth(p.handleMeterReadings),
	)
	mux.HandleFunc("GET /microbus/init", p.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if p.gasContract {
			w.Write(fixture(t, "init.json"))
		} else {
			w.Write(fixture(t, "init_electricity_only.json"))
		}
	}))
	mux.HandleFunc("GET /api/v2/customers/{customer}/rates", p.requireAuth(p.handleRates))
	mux.HandleFunc("GET /api/tariffs", p.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture(t, "tariffs_v1.json"))
	}))
	mux.HandleFunc("POST /microbus/request", p.requireAuth(p.handleMicrobusRequest))

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())
	require.Equal(p.t, testToken, r.PostForm.Get("__RequestVerificationToken"))
	require.NotEmpty(p.t, r.PostForm.Get("ReturnUrl"))
	require.Equal(p.t, "true", r.PostForm.Get("RememberLogin"))

	if r.PostForm.Get("Username") != testUsername || r.PostForm.Get("Password") != testPassword {
		// real portal re-renders the form with an error banner
		fmt.Fprint(w, loginPageHtml)
		return
	}

	p.mu.Lock()
	p.logins++
	p.mu.Unlock()
	fmt.Fprint(w, oidcPageHtml)
}

func (p *portal) handleSigninOidc(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())
	require.Equal(p.t, "auth-code-1", r.PostForm.Get("code"))
	require.Equal(p.t, "openid profile offline_access", r.PostForm.Get("scope"))
	require.Equal(p.t, "state-1", r.PostForm.Get("state"))
	require.Equal(p.t, "session-state-1", r.PostForm.Get("session_state"))

	p.mu.Lock()
	id := fmt.Sprintf("session-%d", p.logins)
	p.sessions[id] = true
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "session", Value: id, Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (p *portal) handleProfiles(w http.ResponseWriter, r *http.Request) {
	var profiles []map[string]any
	require.NoError(p.t, json.Unmarshal(fixture(p.t, "profiles.json"), &profiles))
	for _, profile := range profiles {
		profile["hasActiveGasSupply"] = p.gasSupply
	}
	require.NoError(p.t, json.NewEncoder(w).Encode(profiles))
}

func (p *portal) handleMeterReadings(w http.ResponseWriter, r *http.Request) {
	require.Equal(p.t, "2222", r.PathValue("customer"))
	require.Equal(p.t, "1111", r.PathValue("agreement"))
	require.Equal(p.t, strconv.Itoa(timezone.Now().Year()), r.PathValue("year"))
	w.Write(fixture(p.t, "meter_readings.json"))
}

func (p *portal) handleRates(w http.ResponseWriter, r *http.Request) {
	if !p.hasRates {
		http.NotFound(w, r)
		return
	}
	require.Equal(p.t, "2222", r.PathValue("customer"))
	query := r.URL.Query()
	require.Equal(p.t, "1111", query.Get("AgreementIdElectricity"))
	require.Equal(p.t, "7", query.Get("HouseNumber"))
	require.Equal(p.t, "12345", query.Get("ReferenceIdElectricity"))
	require.Equal(p.t, "1234AB", query.Get("ZipCode"))

	if !p.gasContract {
		require.False(p.t, query.Has("AgreementIdGas"))
		require.False(p.t, query.Has("ReferenceIdGas"))
		w.Write(fixture(p.t, "rates_electricity_only.json"))
		return
	}
	require.Equal(p.t, "1111", query.Get("AgreementIdGas"))
	require.Equal(p.t, "54321", query.Get("ReferenceIdGas"))
	w.Write(fixture(p.t, "rates.json"))
}

func (p *portal) handleMicrobusRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Message any    `json:"message"`
	}
	require.NoError(p.t, json.NewDecoder(r.Body).Decode(&body))
	require.NotEmpty(p.t, body.Name)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (p *portal) requireAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !p.authed(r) {
			http.Redirect(w, r, "/connect/authorize?client_id=mijn", http.StatusFound)
			return
		}
		h(w, r)
	}
}

func (p *portal) authed(r *http.Request) bool {
	cookie, err := r.Cookie("session")
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[cookie.Value]
}

// expireAll invalidates every issued session cookie, as the portal does
// when its sliding session window runs out.
func (p *portal) expireAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.sessions {
		p.sessions[id] = false
	}
}

func (p *portal) loginCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func newTestClient(t *testing.T, p *portal) *Client {
	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:  p.server.URL,
		Username: testUsername,
		Password: testPassword,
	})
	require.NoError(t, err)
	require.NoError(t, client.ActivateSession(context.Background()))
	return client
}

func TestUpdate(t *testing.T) {
	defer telemetry.SetupForTesting(t, "scrapers/greenchoice")()

	p := newPortal(t)
	client := newTestClient(t, p)

	result := client.Update(context.Background())

	measurementDate := time.Date(2022, 5, 6, 0, 0, 0, 0, timezone.Location)
	require.Equal(t, Result{
		KeyElectricityConsumptionHigh:  50000.0,
		KeyElectricityConsumptionLow:   60000.0,
		KeyElectricityConsumptionTotal: 110000.0,
		KeyElectricityReturnHigh:       5000.0,
		KeyElectricityReturnLow:        6000.0,
		KeyElectricityReturnTotal:      11000.0,
		KeyGasConsumption:              10000.0,

		KeyElectricityPriceSingle: 0.25,
		KeyElectricityPriceLow:    0.2,
		KeyElectricityPriceHigh:   0.3,
		KeyElectricityReturnPrice: 0.08,
		KeyGasPrice:               0.8,

		KeyMeasurementDateElectricity: measurementDate,
		KeyMeasurementDateGas:         measurementDate,
	}, result)
}

func TestUpdateWithoutGasSupply(t *testing.T) {
	defer telemetry.SetupForTesting(t, "scrapers/greenchoice")()

	p := newPortal(t)
	p.gasSupply = false
	client := newTestClient(t, p)

	result := client.Update(context.Background())

	require.NotContains(t, result, KeyGasConsumption)
	require.NotContains(t, result, KeyMeasurementDateGas)
	require.Equal(t, 50000.0, result[KeyElectricityConsumptionHigh])
	require.Equal(t, 0.8, result[KeyGasPrice])
}

func TestUpdateWithoutGasContract(t *testing.T) {
	defer telemetry.SetupForTesting(t, "scrapers/greenchoice")()

	p := newPortal(t)
	p.gasSupply = false
	p.gasContract = false
	client := newTestClient(t, p)

	result := client.Update(context.Background())

	require.NotContains(t, result, KeyGasPrice)
	require.NotContains(t, result, KeyGasConsumption)
	require.NotContains(t, result, KeyMeasurementDateGas)

	require.Equal(t, 0.25, result[KeyElectricityPriceSingle])
	require.Equal(t, 0.2, result[KeyElectricityPriceLow])
	require.Equal(t, 0.3, result[KeyElectricityPriceHigh])
	require.Equal(t, 0.08, result[KeyElectricityReturnPrice])
	require.Equal(t, 50000.0, result[KeyElectricityConsumptionHigh])
}

func TestUpdateLegacyTariffs(t *testing.T) {
	defer telemetry.SetupForTesting(t, "scrapers/greenchoice")()

	p := newPortal(t)
	p.hasRates = false
	client := newTestClient(t, p)

	result := client.Update(context.Background())

	require.Equal(t, 0.35, result[KeyElectricityPriceSingle])
	require.Equal(t, 0.3, result[KeyElectricityPriceLow])
	require.Equal(t, 0.4, result[KeyElectricityPriceHigh])
	require.Equal(t, 0.09, result[KeyElectricityReturnPrice])
	require.Equal(t, 0.7, result[KeyGasPrice])
}

func TestSessionRefresh(t *testing.T) {
	defer telemetry.SetupForTesting(t, "scrapers/greenchoice")()

	p := newPortal(t)
	client := newTestClient(t, p)

	_, err := client.fetchPreferences(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.loginCount())

	p.expireAll()

	prefs, err := client.fetchPreferences(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2222, prefs.Subject.CustomerNumber)
	require.Equal(t, 2, p.loginCount())
}

func TestLoginFailed(t *testing.T) {
	defer telemetry.SetupForTesting(t, "scrapers/greenchoice")()

	p := newPortal(t)
	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:  p.server.URL,
		Username: testUsername,
		Password: "not-the-password",
	})
	require.NoError(t, err)

	err = client.ActivateSession(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, 0, p.loginCount())
}

func TestMicrobusRequest(t *testing.T) {
	defer telemetry.SetupForTesting(t, "scrapers/greenchoice")()

	p := newPortal(t)
	client := newTestClient(t, p)

	res, err := client.MicrobusRequest(context.Background(), "KlantgegevensOphalen", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, string(res.Body()))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(context.Background(), ClientOptions{Password: "secret"})
	require.Error(t, err)

	_, err = NewClient(context.Background(), ClientOptions{Username: "jan"})
	require.Error(t, err)
}
