/*
Copyright © 2024 the seaduck authors.
This file is part of seaduck.

seaduck is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

seaduck is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with seaduck.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command seaduck is a command-line interface for interpolating ocean
// model output and tracking particles.
package main

import (
	"fmt"
	"os"

	"github.com/ThomasHaine/seaduck/sdutil"
)

func main() {
	if err := sdutil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
