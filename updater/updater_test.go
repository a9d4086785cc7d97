package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	shell "github.com/Babithkp/billsoft-frontend"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T, updaterConf string) *shell.RunContext {
	t.Helper()

	conf := `{"productName": "billsoft", "version": "1.2.0", "identifier": "com.billsoft.app"`
	if updaterConf != "" {
		conf += `, "plugins": {"updater": ` + updaterConf + `}`
	}
	conf += `}`

	rc, err := shell.ParseContext([]byte(conf), "json")
	require.NoError(t, err)
	return rc
}

type stubChecker struct {
	mu       sync.Mutex
	requests []Request
	answer   func(req Request) (*Release, error)
}

func (s *stubChecker) Check(ctx context.Context, req Request) (*Release, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.answer(req)
}

func (s *stubChecker) endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoints := make([]string, 0, len(s.requests))
	for _, req := range s.requests {
		endpoints = append(endpoints, req.Endpoint)
	}
	return endpoints
}

func release(version string) func(req Request) (*Release, error) {
	return func(req Request) (*Release, error) {
		return &Release{Version: version, URL: "https://example.com/billsoft-" + version}, nil
	}
}

func startWith(t *testing.T, rc *shell.RunContext, plugin shell.Plugin, runtime shell.RuntimeFunc) error {
	t.Helper()
	return shell.Default().WithRuntime(runtime).Plugin(plugin).Start(rc)
}

func Test_Updater_Initialize(t *testing.T) {
	checker := &stubChecker{answer: release("1.3.0")}
	rc := testContext(t, `{"endpoints": ["https://releases.example.com/latest"], "interval": "0s", "pubkey": "key"}`)

	runs := 0
	err := startWith(t, rc, NewBuilder().Checker(checker).Build(), func(app *shell.Application) error {
		runs++

		u, ok := From(app)
		require.True(t, ok, "updater should be published on the application")
		require.Equal(t, []string{"https://releases.example.com/latest"}, u.Config().Endpoints)
		require.Equal(t, "key", u.Config().Pubkey)
		require.Equal(t, time.Duration(0), u.Config().Interval)

		found, err := u.CheckNow(app.Context())
		require.NoError(t, err)
		require.Equal(t, "1.3.0", found.Version)
		require.Equal(t, "1.3.0", u.Latest().Version)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, runs)
	require.Len(t, checker.endpoints(), 2, "one background check and one explicit check")
}

func Test_Updater_InvalidConfig(t *testing.T) {
	cases := map[string]string{
		"no section":       "",
		"no endpoints":     `{"endpoints": []}`,
		"bad endpoint":     `{"endpoints": ["ftp://releases.example.com"]}`,
		"negative timeout": `{"endpoints": ["https://releases.example.com"], "timeout": "-1s"}`,
		"numeric interval": `{"endpoints": ["https://releases.example.com"], "interval": 3600}`,
	}

	for name, conf := range cases {
		t.Run(name, func(t *testing.T) {
			runs := 0
			err := startWith(t, testContext(t, conf), NewBuilder().Build(), func(app *shell.Application) error {
				runs++
				return nil
			})

			var startupErr *shell.FatalStartupError
			require.True(t, errors.As(err, &startupErr))
			require.Equal(t, Name, startupErr.Plugin)
			require.Equal(t, 0, runs, "runtime must not start")
		})
	}
}

func Test_Updater_BuilderOverrides(t *testing.T) {
	checker := &stubChecker{answer: func(req Request) (*Release, error) { return nil, nil }}
	rc := testContext(t, `{"endpoints": ["https://context.example.com"], "interval": "1h"}`)

	plugin := NewBuilder().
		Endpoints("https://builder.example.com").
		Interval(0).
		Timeout(time.Second).
		Checker(checker).
		Build()

	err := startWith(t, rc, plugin, func(app *shell.Application) error {
		u, _ := From(app)
		require.Equal(t, []string{"https://builder.example.com"}, u.Config().Endpoints)
		require.Equal(t, time.Second, u.Config().Timeout)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, []string{"https://builder.example.com"}, checker.endpoints())
}

func Test_Updater_ExpandsEndpoint(t *testing.T) {
	checker := &stubChecker{answer: func(req Request) (*Release, error) { return nil, nil }}

	plugin := NewBuilder().
		Endpoints("https://releases.example.com/{{target}}/{{arch}}/{{current_version}}").
		Target("linux", "amd64").
		Interval(0).
		Checker(checker).
		Build()

	err := startWith(t, testContext(t, ""), plugin, func(app *shell.Application) error {
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, []string{"https://releases.example.com/linux/amd64/1.2.0"}, checker.endpoints())
	require.Equal(t, "1.2.0", checker.requests[0].CurrentVersion)
}

func Test_Updater_CheckNow(t *testing.T) {
	failing := func(req Request) (*Release, error) {
		return nil, fmt.Errorf("connection refused")
	}

	cases := []struct {
		name    string
		answers map[string]func(req Request) (*Release, error)
		version string
		err     bool
	}{
		{
			name:    "newer",
			answers: map[string]func(req Request) (*Release, error){"https://a.example.com": release("1.10.0")},
			version: "1.10.0",
		},
		{
			name:    "same version",
			answers: map[string]func(req Request) (*Release, error){"https://a.example.com": release("1.2.0")},
		},
		{
			name:    "older",
			answers: map[string]func(req Request) (*Release, error){"https://a.example.com": release("v1.1.9")},
		},
		{
			name: "fallback",
			answers: map[string]func(req Request) (*Release, error){
				"https://a.example.com": failing,
				"https://b.example.com": release("2.0.0"),
			},
			version: "2.0.0",
		},
		{
			name: "all failing",
			answers: map[string]func(req Request) (*Release, error){
				"https://a.example.com": failing,
				"https://b.example.com": failing,
			},
			err: true,
		},
		{
			name:    "invalid version",
			answers: map[string]func(req Request) (*Release, error){"https://a.example.com": release("latest")},
			err:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := &stubChecker{answer: func(req Request) (*Release, error) {
				answer, ok := tc.answers[req.Endpoint]
				if !ok {
					return nil, fmt.Errorf("unexpected endpoint %s", req.Endpoint)
				}
				return answer(req)
			}}

			plugin := NewBuilder().
				Endpoints("https://a.example.com", "https://b.example.com").
				Interval(0).
				Checker(checker).
				Build()

			err := startWith(t, testContext(t, ""), plugin, func(app *shell.Application) error {
				u, _ := From(app)

				found, err := u.CheckNow(context.Background())
				if tc.err {
					require.Error(t, err)
					return nil
				}

				require.NoError(t, err)
				if tc.version == "" {
					require.Nil(t, found)
					return nil
				}
				require.Equal(t, tc.version, found.Version)
				return nil
			})
			require.NoError(t, err, "check failures must not be fatal")
		})
	}
}

func Test_Updater_ShutdownStopsLoop(t *testing.T) {
	checks := make(chan struct{}, 16)
	checker := &stubChecker{answer: func(req Request) (*Release, error) {
		select {
		case checks <- struct{}{}:
		default:
		}
		return nil, nil
	}}

	plugin := NewBuilder().
		Endpoints("https://releases.example.com").
		Interval(time.Millisecond).
		Checker(checker).
		Build()

	err := startWith(t, testContext(t, ""), plugin, func(app *shell.Application) error {
		for i := 0; i < 3; i++ {
			select {
			case <-checks:
			case <-time.After(5 * time.Second):
				t.Fatal("background check did not run")
			}
		}
		return nil
	})
	require.NoError(t, err)

	stopped := len(checker.endpoints())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, stopped, len(checker.endpoints()), "no checks after shutdown")
}

func Test_Updater_CheckNow_NoEndpoints(t *testing.T) {
	u := NewBuilder().Build().(*Updater)

	_, err := u.CheckNow(context.Background())
	require.ErrorIs(t, err, ErrNoEndpoints)
}
