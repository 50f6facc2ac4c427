// Command pdp is the policy decision point service entrypoint.
package main

import "github.com/sentinelpdp/pdp/cmd/pdp/cmd"

func main() {
	cmd.Execute()
}
