package profile

// Profile is the build configuration stored in rdpatch.yaml. Command line
// flags take precedence over every field.
type Profile struct {
	Version      int      `yaml:"version"`
	Image        string   `yaml:"image"`
	Android      string   `yaml:"android"`
	Architecture string   `yaml:"architecture"`
	GApps        string   `yaml:"gapps"`
	NDK          bool     `yaml:"ndk"`
	Widevine     bool     `yaml:"widevine"`
	Engine       string   `yaml:"engine"`
	Builder      string   `yaml:"builder"`
	CacheDir     string   `yaml:"cache_dir"`
	Sources      []Source `yaml:"sources"`
}

// Source replaces the built-in download of one module, e.g. with a mirror
// or a locally hosted archive.
type Source struct {
	Comment  string `yaml:"_comment"`
	Module   string `yaml:"module"`
	Provider string `yaml:"provider"`
	Arch     string `yaml:"arch"`
	// Android is a semantic version constraint on the Android release.
	Android  string `yaml:"android"`
	URL      string `yaml:"url"`
	Archive  string `yaml:"archive"`
	Layout   string `yaml:"layout"`
	Root     string `yaml:"root"`
	Into     string `yaml:"into"`
	Checksum string `yaml:"checksum"`
}
