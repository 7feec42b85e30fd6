// SPDX-License-Identifier: EPL-2.0

package main

import cmd "romg-cli/cmd/romg"

func main() {
	cmd.Execute()
}
