// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package runtimeEnv

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file into the process environment, for local
// development overrides of config values (e.g. NATS credentials) that
// shouldn't live in config.json. A missing file is returned as an error
// that satisfies os.IsNotExist; the caller decides whether to treat that
// as fatal via an `!os.IsNotExist(err)` check around this call.
func LoadEnv(file string) error {
	return godotenv.Load(file)
}

// SystemdNotifiy informs systemd of readiness/status via sd_notify, a
// no-op when the process wasn't started under systemd.
func SystemdNotifiy(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}
	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // errors ignored on purpose, there is not much to do anyways.
}
