// agent-runner drives Android UI test scenarios through a decision
// policy, one query-decide-apply cycle at a time.
package main

import "github.com/devicelab-dev/agent-runner/pkg/cli"

func main() {
	cli.Execute()
}
