package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultServiceName is the name the worker is registered under when no
// configuration overrides it
const DefaultServiceName = "DemoWorkerService"

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	ConfigPath    string
	WorkerLogFile string
	WorkerBinary  string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			ConfigPath:    `C:\ProgramData\DemoWorker\config.yaml`,
			WorkerLogFile: `C:\ProgramData\DemoWorker\logs\worker.log`,
			WorkerBinary:  "worker.exe",
		}
	case "freebsd":
		return PlatformDefaults{
			ConfigPath:    "/usr/local/etc/demo-worker/config.yaml",
			WorkerLogFile: "/var/log/demo-worker/worker.log",
			WorkerBinary:  "worker",
		}
	default:
		// Linux and anything unknown share the FHS layout
		return PlatformDefaults{
			ConfigPath:    "/etc/demo-worker/config.yaml",
			WorkerLogFile: "/var/log/demo-worker/worker.log",
			WorkerBinary:  "worker",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// DefaultWorkerExecutable returns the worker binary that sits next to the
// running executable. The controller tools and the worker ship together.
func DefaultWorkerExecutable() string {
	binary := GetPlatformDefaults().WorkerBinary
	self, err := os.Executable()
	if err != nil {
		return binary
	}
	return filepath.Join(filepath.Dir(self), binary)
}

// UpdateConfigDefaults updates viper defaults with platform-specific values
// This should be called from setDefaults() in config.go
func UpdateConfigDefaults(v interface{}) {
	type viper interface {
		SetDefault(key string, value interface{})
	}

	if viperInstance, ok := v.(viper); ok {
		defaults := GetPlatformDefaults()

		viperInstance.SetDefault("worker.log_file", defaults.WorkerLogFile)
		viperInstance.SetDefault("service.executable", DefaultWorkerExecutable())
	}
}
