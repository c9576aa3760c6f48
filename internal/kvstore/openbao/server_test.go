// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package openbao

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/hashicorp/consul/sdk/testutil"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-uuid"
	"github.com/hashicorp/serf/testutil/retry"
	"github.com/pkg/errors"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore/kvstoretest"
)

const devServerAddr = "http://127.0.0.1:8200"

func newDevTestServer(t *testing.T) *TestServer {
	if os.Getenv("TF_ACC") == "" && os.Getenv("TOFU_VAULT_TEST") == "" {
		t.Skipf("OpenBao server tests require setting TF_ACC or TOFU_VAULT_TEST")
	}

	srv, err := NewTestServerConfigT(t)
	if err != nil {
		t.Fatalf("failed to create OpenBao test server: %s", err)
	}

	return srv
}

func TestStore_devServer(t *testing.T) {
	srv := newDevTestServer(t)
	defer srv.Stop()

	d, err := NewDialer(context.Background(), Config{Address: srv.HTTPAddr, Mount: "secret"})
	if err != nil {
		t.Fatalf("NewDialer: %s", err)
	}
	s, err := d.Dial(context.Background(), srv.RootToken)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}

	kvstoretest.TestStore(t, s, fmt.Sprintf("tofu-unit/%d", time.Now().UnixNano()))
}

// TestServer wraps a dev mode server process.
type TestServer struct {
	cmd *exec.Cmd

	HTTPAddr   string
	HTTPClient *http.Client
	RootToken  string
}

// NewTestServerConfigT starts a dev mode server using the bao binary, or the
// vault binary when bao isn't installed. If there is an error configuring or
// starting the server, the server will NOT be running when the function
// returns (thus you do not need to stop it).
func NewTestServerConfigT(t *testing.T) (*TestServer, error) {
	binary := "bao"
	if path, err := exec.LookPath(binary); err != nil || path == "" {
		binary = "vault"
		if path, err := exec.LookPath(binary); err != nil || path == "" {
			return nil, fmt.Errorf("neither bao nor vault found on $PATH - download and install " +
				"OpenBao or skip this test")
		}
	}

	logBuffer := testutil.NewLogBuffer(t)

	if !flag.Parsed() {
		flag.Parse()
	}

	if !testing.Verbose() {
		logBuffer = io.Discard
	}

	rootToken, err := uuid.GenerateUUID()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate UUID")
	}

	// Start the server
	args := []string{"server", "-dev", "-dev-root-token-id=" + rootToken, "-log-level=warn"}
	cmd := exec.Command(binary, args...)
	cmd.Stdout = logBuffer
	cmd.Stderr = logBuffer
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed starting command")
	}

	server := &TestServer{
		cmd: cmd,

		HTTPAddr:   devServerAddr,
		HTTPClient: cleanhttp.DefaultClient(),
		RootToken:  rootToken,
	}

	// Wait for the server to be ready
	if err := server.waitForAPI(); err != nil {
		if err := server.Stop(); err != nil {
			t.Logf("server stop failed with: %v", err)
		}
		return nil, err
	}

	return server, nil
}

// Stop stops the test server.
func (s *TestServer) Stop() error {
	// There was no process
	if s.cmd == nil {
		return nil
	}

	if s.cmd.Process != nil {
		if runtime.GOOS == "windows" {
			if err := s.cmd.Process.Kill(); err != nil {
				return errors.Wrap(err, "failed to kill server")
			}
		} else { // interrupt is not supported in windows
			if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
				return errors.Wrap(err, "failed to kill server")
			}
		}
	}

	waitDone := make(chan error)
	go func() {
		waitDone <- s.cmd.Wait()
		close(waitDone)
	}()

	// wait for the process to exit to be sure that the data dir can be
	// deleted on all platforms.
	select {
	case err := <-waitDone:
		return err
	case <-time.After(10 * time.Second):
		s.cmd.Process.Signal(syscall.SIGABRT)
		s.cmd.Wait()
		return fmt.Errorf("timeout waiting for server to stop gracefully")
	}
}

func (s *TestServer) waitForAPI() error {
	timer := retry.TwoSeconds()
	deadline := time.Now().Add(timer.Timeout)
	for !time.Now().After(deadline) {
		time.Sleep(timer.Wait)

		req, err := http.NewRequest("GET", s.HTTPAddr+"/v1/sys/health", nil)
		if err != nil {
			continue
		}

		resp, err := s.HTTPClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		return nil
	}
	return fmt.Errorf("api unavailable")
}
