/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"dialogical/internal/config"
	"dialogical/internal/domain"
	"dialogical/internal/server"
	"dialogical/internal/version"
)

type run struct {
	code   int
	stdout string
	stderr string
}

// dg runs the CLI with an isolated config file.
func dg(t *testing.T, stdin string, args ...string) run {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	all := append([]string{"--config", cfg}, args...)
	var out, errb bytes.Buffer
	code := execute(context.Background(), all, strings.NewReader(stdin), &out, &errb)
	return run{code: code, stdout: out.String(), stderr: errb.String()}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func decodeDoc(t *testing.T, s string) domain.Document {
	t.Helper()
	var doc domain.Document
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, s)
	}
	return doc
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "a.dg", "Hi\n")
	cases := [][]string{
		{},
		{"--stdin", f},
		{"--version", "--stdin"},
		{f, f},
		{"--bogus-flag"},
	}
	for _, args := range cases {
		if r := dg(t, "", args...); r.code != 1 {
			t.Fatalf("dg %v exit = %d, want 1 (stderr %q)", args, r.code, r.stderr)
		}
	}
}

func TestVersion(t *testing.T) {
	r := dg(t, "", "--version")
	if r.code != 0 {
		t.Fatalf("exit = %d", r.code)
	}
	if !strings.Contains(r.stdout, version.String()) {
		t.Fatalf("stdout = %q", r.stdout)
	}
}

func TestCompileFileToStdout(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "intro.dg", "%intro\nHello\n---\n###\nEcho from a script\n###\n> Go\n@ intro\n")
	r := dg(t, "", "--silent", f)
	if r.code != 0 {
		t.Fatalf("exit = %d, stderr %s", r.code, r.stderr)
	}
	doc := decodeDoc(t, r.stdout)
	seg, ok := doc.Segment("intro")
	if !ok || len(seg.Pages) != 2 || len(seg.Choices) != 1 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if got := seg.Pages[1].Lines[0]; got != "from a script\n" {
		t.Fatalf("comptime line = %q", got)
	}
	if strings.Contains(r.stderr, "compiling") {
		t.Fatalf("--silent still logged progress: %s", r.stderr)
	}
}

func TestCompileStdinLogsProgress(t *testing.T) {
	r := dg(t, "One\n---\nTwo\n", "--stdin")
	if r.code != 0 {
		t.Fatalf("exit = %d, stderr %s", r.code, r.stderr)
	}
	doc := decodeDoc(t, r.stdout)
	if got := doc.PageCount(); got != 2 {
		t.Fatalf("pages = %d, want 2", got)
	}
	for _, msg := range []string{"reading", "compiling", "writing", "done"} {
		if !strings.Contains(r.stderr, msg) {
			t.Fatalf("stderr missing %q:\n%s", msg, r.stderr)
		}
	}
}

func TestOutputFileAndProof(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "a.dg", "Hello\n")
	out := filepath.Join(dir, "out", "a.yaml")
	proof := filepath.Join(dir, "out", "a.html")
	r := dg(t, "", "--silent", "-o", out, "--proof", proof, f)
	if r.code != 0 {
		t.Fatalf("exit = %d, stderr %s", r.code, r.stderr)
	}
	if r.stdout != "" {
		t.Fatalf("stdout should be empty with -o, got %q", r.stdout)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc domain.Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("output is not yaml: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	if _, err := os.Stat(proof); err != nil {
		t.Fatalf("proof not written: %v", err)
	}
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		path string
		want int
	}{
		{"missing", filepath.Join(dir, "missing.dg"), 2},
		{"parse", writeFile(t, dir, "parse.dg", "%\nHi\n"), 3},
		{"unterminated", writeFile(t, dir, "open.dg", "Hi\n###\n"), 3},
		{"comptime", writeFile(t, dir, "fault.dg", "###\nBogus\n###\n"), 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := dg(t, "", "--silent", c.path)
			if r.code != c.want {
				t.Fatalf("exit = %d, want %d (stderr %s)", r.code, c.want, r.stderr)
			}
			if !strings.Contains(r.stderr, c.path) {
				t.Fatalf("error does not name the file: %s", r.stderr)
			}
		})
	}
}

func TestCheckReportsWorstFailure(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.dg", "Hi\n")
	parse := writeFile(t, dir, "parse.dg", "%\nHi\n")
	fault := writeFile(t, dir, "fault.dg", "###\nBogus\n###\n")

	r := dg(t, "", "--silent", "check", ok, parse, fault)
	if r.code != 4 {
		t.Fatalf("exit = %d, want 4", r.code)
	}
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "ok ") || !strings.HasPrefix(lines[1], "FAIL") || !strings.HasPrefix(lines[2], "FAIL") {
		t.Fatalf("check output:\n%s", r.stdout)
	}

	if r := dg(t, "", "--silent", "check", ok); r.code != 0 {
		t.Fatalf("all-ok check exit = %d", r.code)
	}
}

func TestConfigCommands(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "nested", "config.yaml")

	var out, errb bytes.Buffer
	code := execute(context.Background(), []string{"--config", cfgPath, "config", "path"}, strings.NewReader(""), &out, &errb)
	if code != 0 || strings.TrimSpace(out.String()) != cfgPath {
		t.Fatalf("config path: code %d out %q", code, out.String())
	}

	out.Reset()
	code = execute(context.Background(), []string{"--config", cfgPath, "config", "init"}, strings.NewReader(""), &out, &errb)
	if code != 0 {
		t.Fatalf("config init exit = %d: %s", code, errb.String())
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	out.Reset()
	code = execute(context.Background(), []string{"--config", cfgPath, "config", "show"}, strings.NewReader(""), &out, &errb)
	if code != 0 || !strings.Contains(out.String(), "comptime:") {
		t.Fatalf("config show: code %d out %q", code, out.String())
	}

	out.Reset()
	code = execute(context.Background(), []string{"config", "set-cache-password"}, strings.NewReader("s3cret\n"), &out, &errb)
	if code != 0 {
		t.Fatalf("set-cache-password exit = %d: %s", code, errb.String())
	}
	pw, err := config.Defaults().CachePassword()
	if err != nil || pw != "s3cret" {
		t.Fatalf("CachePassword = %q, %v", pw, err)
	}
	if strings.Contains(out.String(), "s3cret") {
		t.Fatalf("password echoed to stdout")
	}
}

func TestSQLiteCacheStats(t *testing.T) {
	t.Setenv("DG_CACHE_BACKEND", "sqlite")
	t.Setenv("DG_CACHE_DIR", t.TempDir())
	dir := t.TempDir()
	f := writeFile(t, dir, "a.dg", "###\nEcho cached\n###\n")

	for i := 0; i < 2; i++ {
		if r := dg(t, "", "--silent", f); r.code != 0 {
			t.Fatalf("compile %d exit = %d: %s", i, r.code, r.stderr)
		}
	}
	r := dg(t, "", "--silent", "cache", "stats")
	if r.code != 0 {
		t.Fatalf("cache stats exit = %d: %s", r.code, r.stderr)
	}
	if !strings.Contains(r.stdout, "entries: 1") || !strings.Contains(r.stdout, "hits: 1") {
		t.Fatalf("stats = %q", r.stdout)
	}
	r = dg(t, "", "--silent", "cache", "prune", "--older-than", "0s")
	if r.code != 0 || !strings.Contains(r.stdout, "pruned 1 entries") {
		t.Fatalf("prune: code %d out %q err %s", r.code, r.stdout, r.stderr)
	}
}

func TestCacheCommandsNeedPersistentBackend(t *testing.T) {
	t.Setenv("DG_CACHE_BACKEND", "memory")
	if r := dg(t, "", "--silent", "cache", "stats"); r.code != 1 {
		t.Fatalf("exit = %d, want 1", r.code)
	}
}

func TestRemoteCompile(t *testing.T) {
	ts := httptest.NewServer(server.New(server.Options{}))
	defer ts.Close()
	dir := t.TempDir()
	good := writeFile(t, dir, "good.dg", "Hello\n---\nAgain\n")
	bad := writeFile(t, dir, "bad.dg", "###\nBogus\n###\n")

	r := dg(t, "", "--silent", "--remote", ts.URL, good)
	if r.code != 0 {
		t.Fatalf("exit = %d: %s", r.code, r.stderr)
	}
	doc := decodeDoc(t, r.stdout)
	if got := doc.PageCount(); got != 2 {
		t.Fatalf("pages = %d", got)
	}
	if r := dg(t, "", "--silent", "--remote", ts.URL, bad); r.code != 4 {
		t.Fatalf("remote comptime failure exit = %d, want 4", r.code)
	}
}

func TestExitCodeForPlainErrors(t *testing.T) {
	if got := exitCode(io.ErrUnexpectedEOF, io.Discard); got != 1 {
		t.Fatalf("exitCode = %d, want 1", got)
	}
	if got := exitCode(&exitError{code: 4}, io.Discard); got != 4 {
		t.Fatalf("exitCode = %d, want 4", got)
	}
}
