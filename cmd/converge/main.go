// Converge reconciles one AWS autoscaling group to a desired state.
package main

func main() {
	Execute()
}
