package main

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
	pe "github.com/wanglei-coder/pecodec"
)

var (
	filename   string
	sections   string
	verbose    bool
	stripDebug bool
	addSection string
	out        string
)

func init() {
	flag.StringVar(&filename, "filename", "", "Please enter the file path")
	flag.StringVar(&sections, "sections", "all", "comma separated decoders, e.g. import,export,reloc")
	flag.BoolVar(&verbose, "v", false, "log parse events")
	flag.BoolVar(&stripDebug, "strip-debug", false, "clear the debug directory in place and write the result to -out")
	flag.StringVar(&addSection, "add-section", "", "append an empty initialized data section with this name and write the result to -out")
	flag.StringVar(&out, "out", "", "output path for -strip-debug and -add-section")
}

type Info struct {
	MachineType      string
	EntryPoint       uint32
	CompilationTime  uint32
	ImpHash          string
	RichHeaderHash   string
	Authentihash     string
	Exports          []string
	Imports          map[string][]string
	Certificates     int
	Overlay          *Overlay
	Sections         []*Section
	ResourceDetails  []*ResourceDetail
	ExceptionEntries int
	Relocations      int
}

type Overlay struct {
	MD5      string
	FileType string
	Offset   uint64
	Size     int64
	Entropy  float64
}

type Section struct {
	Name           string
	MD5            string
	Flags          string
	FileType       string
	RawSize        uint32
	VirtualAddress uint32
	VirtualSize    uint32
	Entropy        float64
}

type ResourceDetail struct {
	Language string
	Type     string
	FileType string
	SHA256   string
	Entropy  float64
}

func getSections(f *pe.File, data []byte) []*Section {
	sections := make([]*Section, 0, len(f.Sections))
	for i := range f.Sections {
		s := &f.Sections[i]
		name, err := s.FullName(f.StringTable)
		if err != nil {
			name = s.NameString()
		}
		sections = append(sections, &Section{
			Name:           name,
			RawSize:        s.SizeOfRawData,
			VirtualAddress: s.VirtualAddress,
			VirtualSize:    s.VirtualSize,
			Flags:          s.Flags(),
			MD5:            s.MD5(data),
			Entropy:        s.Entropy(data),
			FileType:       GetFileType(s.Data(data)),
		})
	}
	return sections
}

func getResourceDetails(f *pe.File, data []byte, log zerolog.Logger) []*ResourceDetail {
	if f.ResourceTable == nil {
		return nil
	}
	root, err := f.ResourceTable.Directory()
	if err != nil {
		log.Warn().Err(err).Msg("cannot decode resource tree")
		return nil
	}

	resourceDetails := make([]*ResourceDetail, 0)
	for _, resourceType := range root.Entries {
		if resourceType.Directory == nil {
			continue
		}
		resourceTypeName := pe.GetResourceTypeName(resourceType)
		for _, resourceID := range resourceType.Directory.Entries {
			if resourceID.Directory == nil {
				continue
			}
			for _, resourceLang := range resourceID.Directory.Entries {
				if resourceLang.Data == nil {
					continue
				}
				rd := &ResourceDetail{
					Type:     resourceTypeName,
					Language: fmt.Sprintf("0x%x/0x%x", resourceLang.Data.Lang, resourceLang.Data.SubLang),
				}
				resourceDetails = append(resourceDetails, rd)
				leaf, err := f.ResourceData(data, resourceLang.Data)
				if err != nil || leaf == nil {
					continue
				}
				rd.SHA256 = fmt.Sprintf("%x", sha256.Sum256(leaf))
				rd.Entropy = pe.Entropy(leaf)
				rd.FileType = GetFileType(leaf)
			}
		}
	}
	return resourceDetails
}

func getOverlay(f *pe.File, data []byte) *Overlay {
	overlay := f.Overlay(data)
	if overlay == nil {
		return nil
	}
	sum := md5.Sum(overlay)
	return &Overlay{
		Offset:   uint64(f.OverlayOffset(data)),
		Size:     int64(len(overlay)),
		MD5:      hex.EncodeToString(sum[:]),
		Entropy:  pe.Entropy(overlay),
		FileType: GetFileType(overlay),
	}
}

func getInfo(f *pe.File, data []byte, log zerolog.Logger) *Info {
	info := &Info{
		CompilationTime: f.FileHeader.TimeDateStamp,
		MachineType:     f.FileHeader.Machine.String(),
		EntryPoint:      f.OptionalHeader.StandardFields.AddressOfEntryPoint,
		Authentihash:    hex.EncodeToString(f.Authentihash(data)),
		Sections:        getSections(f, data),
		ResourceDetails: getResourceDetails(f, data, log),
		Overlay:         getOverlay(f, data),
	}
	if f.RichHeader != nil {
		info.RichHeaderHash = f.RichHeaderHash()
	}
	if f.ImportTable != nil {
		info.ImpHash, _ = f.ImportTable.ImpHash()
		info.Imports = make(map[string][]string, len(f.ImportTable.Entries))
		for _, imp := range f.ImportTable.Entries {
			for _, fn := range imp.Functions {
				name := fn.Name
				if fn.ByOrdinal {
					name = fmt.Sprintf("ord%d", fn.Ordinal)
				}
				info.Imports[imp.Name] = append(info.Imports[imp.Name], name)
			}
		}
	}
	if f.ExportTable != nil {
		info.Exports = f.ExportTable.Names
	}
	if f.CertificateTable != nil {
		info.Certificates = len(f.CertificateTable.Certificates)
	}
	if f.ExceptionTable != nil {
		info.ExceptionEntries = f.ExceptionTable.Len()
	}
	if f.BaseRelocationTable != nil {
		for _, block := range f.BaseRelocationTable.Blocks {
			info.Relocations += len(block.Entries)
		}
	}
	return info
}

// stripDebugDirectory clears the debug directory entry in a copy of data.
func stripDebugDirectory(f *pe.File, data []byte) ([]byte, error) {
	patched := append([]byte(nil), data...)
	f.OptionalHeader.DataDirectories[pe.ImageDirectoryEntryDebug] = pe.DataDirectory{}
	if err := f.Patch(patched); err != nil {
		return nil, err
	}
	return patched, nil
}

func appendSection(f *pe.File, data []byte, name string) ([]byte, error) {
	def, err := pe.FromPEFile(f, data)
	if err != nil {
		return nil, err
	}
	sh := def.NewSection(name, pe.ImageScnMemRead|pe.ImageScnCntInitializedData)
	sh.AddData(make([]byte, def.OptionalHeader.FileAlignment()))
	return def.WriteFile()
}

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if filename == "" {
		log.Fatal().Msg("-filename is required")
	}
	flags, err := pe.ParseSectionFlagsFromString(sections)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -sections")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot read file")
	}
	f, err := pe.ParseWithOptions(data, pe.Options{Sections: flags, Logger: &log})
	if err != nil {
		log.Fatal().Err(err).Str("file", filename).Msg("cannot parse image")
	}
	if f.OptionalHeader == nil {
		log.Info().Msg("image has no optional header")
		return
	}

	if stripDebug || addSection != "" {
		if out == "" {
			log.Fatal().Msg("-out is required")
		}
		var result []byte
		if stripDebug {
			result, err = stripDebugDirectory(f, data)
		} else {
			result, err = appendSection(f, data, addSection)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("cannot rewrite image")
		}
		if err := os.WriteFile(out, result, 0o644); err != nil {
			log.Fatal().Err(err).Msg("cannot write output")
		}
		log.Info().Str("out", out).Int("size", len(result)).Msg("image written")
		return
	}

	info, _ := json.MarshalIndent(getInfo(f, data, log), "", "    ")
	fmt.Printf("%s\n", info)
}

func GetFileType(data []byte) string {
	kind, _ := filetype.Match(data)
	if kind == filetype.Unknown {
		return "Data"
	}
	return kind.MIME.Value
}
