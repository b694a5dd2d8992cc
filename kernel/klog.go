// Console logging
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import "log"

// klog is the kernel's only logging sink: a log.Logger wrapping the
// process-wide default writer (the console, under GOOS=tamago) with a
// "kernel: " prefix, matching the "log: %v" style already used by
// xhci/usb/hid (see their log.Printf calls). A freestanding kernel has
// nothing richer than its own console to log to, so there is no case for a
// structured logger beyond the teacher's plain log.Logger usage.
var klog = log.New(log.Writer(), "kernel: ", 0)
