package runtime

import (
	"errors"
	"os/exec"
	"path/filepath"

	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
)

// Executables used by a broker session.
const (
	JavaExecutable         = "java"
	CoordinationExecutable = "zookeeper-server-start.sh"
	BrokerExecutable       = "kafka-server-start.sh"
	TopicsExecutable       = "kafka-topics.sh"
)

// Dependency is an external executable the broker session needs.
type Dependency struct {
	Name string
	// Executable is looked up in BinDir first when set, else in PATH.
	Executable string
	Hint       string
	// FromPath ignores BinDir. The JDK is never shipped with the Kafka scripts.
	FromPath bool
}

// DefaultDependencies are the JDK and the Kafka distribution scripts.
var DefaultDependencies = []Dependency{
	{
		Name:       "JDK",
		Executable: JavaExecutable,
		Hint:       "install a JDK and make sure java is on PATH",
		FromPath:   true,
	},
	{
		Name:       "Kafka",
		Executable: BrokerExecutable,
		Hint:       "install the Kafka tools and put their bin directory on PATH or set bin_dir",
	},
	{
		Name:       "ZooKeeper",
		Executable: CoordinationExecutable,
		Hint:       "the Kafka distribution ships zookeeper-server-start.sh in its bin directory",
	},
	{
		Name:       "Kafka topics tool",
		Executable: TopicsExecutable,
		Hint:       "the Kafka distribution ships kafka-topics.sh in its bin directory",
	},
}

var lookPath = exec.LookPath

// ResolveExecutable returns the path used to run name.
func ResolveExecutable(binDir, name string) string {
	if binDir == "" {
		return name
	}
	return filepath.Join(binDir, name)
}

// CheckDependencies verifies every dependency resolves to an executable and
// returns one *errors.DependencyMissingError per missing entry, joined.
func CheckDependencies(binDir string, deps []Dependency) error {
	var errs []error
	for _, dep := range deps {
		dir := binDir
		if dep.FromPath {
			dir = ""
		}
		if _, err := lookPath(ResolveExecutable(dir, dep.Executable)); err != nil {
			errs = append(errs, &errspkg.DependencyMissingError{Name: dep.Name, Hint: dep.Hint})
		}
	}
	return errors.Join(errs...)
}
