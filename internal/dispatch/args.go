// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import "github.com/cckit/dawsync/internal/wireformat"

func argsOK(args []wireformat.Arg, kinds ...wireformat.ArgKind) bool {
	if len(args) < len(kinds) {
		return false
	}
	for i, k := range kinds {
		if args[i].Kind != k {
			return false
		}
	}
	return true
}

func argInt(args []wireformat.Arg, i int) int       { return int(args[i].I) }
func argFloat(args []wireformat.Arg, i int) float64 { return float64(args[i].F) }
func argStr(args []wireformat.Arg, i int) string    { return args[i].S }
func argBool(args []wireformat.Arg, i int) bool     { return args[i].Bool() }
