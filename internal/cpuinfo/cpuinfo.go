// Package cpuinfo reports the host CPU features relevant to integer
// convolution kernels.
package cpuinfo

import (
	"runtime"
	"slices"

	"golang.org/x/sys/cpu"
)

type Report struct {
	GoOS     string          `json:"goos"`
	GoArch   string          `json:"goarch"`
	CPUs     int             `json:"cpus"`
	Features map[string]bool `json:"features"`
}

// Detect reads the feature flags for the running architecture.
func Detect() Report {
	r := Report{
		GoOS:   runtime.GOOS,
		GoArch: runtime.GOARCH,
		CPUs:   runtime.NumCPU(),
	}
	r.Features = features(runtime.GOARCH)
	return r
}

func features(arch string) map[string]bool {
	switch arch {
	case "amd64", "386":
		return map[string]bool{
			"sse41":      cpu.X86.HasSSE41,
			"sse42":      cpu.X86.HasSSE42,
			"avx":        cpu.X86.HasAVX,
			"avx2":       cpu.X86.HasAVX2,
			"fma":        cpu.X86.HasFMA,
			"avx512f":    cpu.X86.HasAVX512F,
			"avx512bw":   cpu.X86.HasAVX512BW,
			"avx512vl":   cpu.X86.HasAVX512VL,
			"avx512vnni": cpu.X86.HasAVX512VNNI,
		}
	case "arm64":
		return map[string]bool{
			"fp":      cpu.ARM64.HasFP,
			"asimd":   cpu.ARM64.HasASIMD,
			"asimddp": cpu.ARM64.HasASIMDDP,
			"sve":     cpu.ARM64.HasSVE,
			"sve2":    cpu.ARM64.HasSVE2,
		}
	}
	return map[string]bool{}
}

// Enabled returns the names of the present features in sorted order.
func (r Report) Enabled() []string {
	var out []string
	for name, ok := range r.Features {
		if ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Class names the widest integer dot-product tier the host offers. The
// convolution kernels are portable Go; the class is reported alongside
// benchmark results so numbers from different hosts can be compared.
func (r Report) Class() string {
	f := r.Features
	switch {
	case f["avx512vnni"]:
		return "avx512-vnni"
	case f["avx512bw"]:
		return "avx512"
	case f["avx2"]:
		return "avx2"
	case f["asimddp"]:
		return "neon-dotprod"
	case f["asimd"]:
		return "neon"
	}
	return "generic"
}
