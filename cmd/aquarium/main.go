// The aquarium command runs Aquarium assembly programs on the simulated
// machine.
package main

import "github.com/aquariumsim/aquarium/aquarium"

func main() {
	aquarium.Execute()
}
