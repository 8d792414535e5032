// Package env describes the environment variables matbench reacts to.
package env

import "os"

const (
	IgnoreCacheVar = "MATBENCH_STORE_IGNORE_CACHE"
	PRArgsVar      = "TOPSAIL_PR_ARGS"
	OpenShiftCIVar = "OPENSHIFT_CI"
	PerflabCIVar   = "PERFLAB_CI"
	SharedDirVar   = "SHARED_DIR"
	JobNameSafeVar = "JOB_NAME_SAFE"
	ArtifactDirVar = "ARTIFACT_DIR"

	// Exported to child processes by config.Init so that toolbox commands
	// read the same configuration file.
	ConfigFileVar      = "CI_ARTIFACTS_FROM_CONFIG_FILE"
	CommandArgsFileVar = "CI_ARTIFACTS_FROM_COMMAND_ARGS_FILE"

	InfluxURLVar    = "INFLUXDB_URL"
	InfluxTokenVar  = "INFLUXDB_TOKEN"
	InfluxOrgVar    = "INFLUXDB_ORG"
	InfluxBucketVar = "INFLUXDB_BUCKET"
)

// Env is a snapshot of the variables above, taken once at the composition
// root and handed to the components that need it.
type Env struct {
	IgnoreCache bool
	PRArgs      string
	OpenShiftCI string
	PerflabCI   string
	SharedDir   string
	JobNameSafe string
	ArtifactDir string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// FromEnviron reads the process environment.
func FromEnviron() Env {
	return Lookup(os.Getenv)
}

// Lookup builds an Env from an arbitrary getter, which keeps tests away
// from the process environment.
func Lookup(getenv func(string) string) Env {
	return Env{
		IgnoreCache:  Truthy(getenv(IgnoreCacheVar)),
		PRArgs:       getenv(PRArgsVar),
		OpenShiftCI:  getenv(OpenShiftCIVar),
		PerflabCI:    getenv(PerflabCIVar),
		SharedDir:    getenv(SharedDirVar),
		JobNameSafe:  getenv(JobNameSafeVar),
		ArtifactDir:  getenv(ArtifactDirVar),
		InfluxURL:    getenv(InfluxURLVar),
		InfluxToken:  getenv(InfluxTokenVar),
		InfluxOrg:    getenv(InfluxOrgVar),
		InfluxBucket: getenv(InfluxBucketVar),
	}
}

// InCI reports whether a CI system we know about is driving the process.
func (e Env) InCI() bool {
	return e.OpenShiftCI != "" || e.PerflabCI != ""
}

// Truthy recognizes the values accepted for boolean switches.
func Truthy(v string) bool {
	switch v {
	case "yes", "y", "true", "True":
		return true
	}
	return false
}

// IgnoreCache is evaluated on every parse call, not cached.
func IgnoreCache() bool {
	return Truthy(os.Getenv(IgnoreCacheVar))
}
