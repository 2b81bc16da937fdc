// Package catalog provides the static course and program reference data the
// handbook serves alongside its mutable state.
//
// This data is published once per term by the university and never changes
// between releases, so it is loaded read-only at startup from a pair of JSON
// files and held in memory. Lookups are stateless and keyed by explicit
// codes — there is deliberately no "last looked-up program" shortcut, so two
// requests never depend on each other's ordering.
//
// Prerequisite/eligibility resolution is out of scope: the raw requirement
// strings are carried through verbatim for display only.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/campushq/handbook/internal/apperror"
)

// CourseInfo is the immutable handbook entry for one course.
type CourseInfo struct {
	Code            string   `json:"code"`  // e.g. "COMP1511"
	Title           string   `json:"title"` // e.g. "Programming Fundamentals"
	UOC             int      `json:"UOC"`   // units of credit
	Level           int      `json:"level"`
	Description     string   `json:"description"`
	StudyLevel      string   `json:"studyLevel"` // "Undergraduate" / "Postgraduate"
	School          string   `json:"school"`
	Faculty         string   `json:"faculty"`
	Campus          string   `json:"campus"`
	Terms           []string `json:"terms"` // offering terms, e.g. ["T1","T3"]
	GenEd           bool     `json:"genEd"`
	RawRequirements string   `json:"rawRequirements"` // display only, not evaluated
}

// ProgramInfo is the immutable handbook entry for one degree program.
type ProgramInfo struct {
	Code     string   `json:"code"`  // 4-digit program code, e.g. "3778"
	Title    string   `json:"title"` // e.g. "Computer Science"
	UOC      int      `json:"UOC"`
	Duration int      `json:"duration"` // years
	Overview string   `json:"overview"`
	Courses  []string `json:"courses"` // course codes offered under this program
}

var (
	courseCodeRe  = regexp.MustCompile(`^[A-Z]{4}[0-9]{4}$`)
	programCodeRe = regexp.MustCompile(`^[0-9]{4}$`)
)

// ValidCourseCode reports whether code has the four-letters-four-digits
// handbook shape. Codes are compared uppercase everywhere; callers should
// normalize before checking.
func ValidCourseCode(code string) bool {
	return courseCodeRe.MatchString(code)
}

// ValidProgramCode reports whether code is a four-digit program code.
func ValidProgramCode(code string) bool {
	return programCodeRe.MatchString(code)
}

// Catalog is an in-memory, read-only index of the reference data.
type Catalog struct {
	courses  map[string]*CourseInfo
	programs map[string]*ProgramInfo
}

// New builds a Catalog from literal data. Used by tests and by deployments
// that assemble the dataset themselves.
func New(courses []CourseInfo, programs []ProgramInfo) *Catalog {
	c := &Catalog{
		courses:  make(map[string]*CourseInfo, len(courses)),
		programs: make(map[string]*ProgramInfo, len(programs)),
	}
	for i := range courses {
		course := courses[i]
		course.Code = strings.ToUpper(course.Code)
		c.courses[course.Code] = &course
	}
	for i := range programs {
		program := programs[i]
		c.programs[program.Code] = &program
	}
	return c
}

// Load reads courses.json and programs.json from dir.
//
// File shapes mirror the published handbook dumps: a top-level object with
// a "courses" (resp. "programs") map keyed by code.
func Load(dir string) (*Catalog, error) {
	var courseFile struct {
		Courses map[string]CourseInfo `json:"courses"`
	}
	if err := readJSON(filepath.Join(dir, "courses.json"), &courseFile); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	var programFile struct {
		Programs map[string]ProgramInfo `json:"programs"`
	}
	if err := readJSON(filepath.Join(dir, "programs.json"), &programFile); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	courses := make([]CourseInfo, 0, len(courseFile.Courses))
	for code, course := range courseFile.Courses {
		if course.Code == "" {
			course.Code = code
		}
		courses = append(courses, course)
	}
	programs := make([]ProgramInfo, 0, len(programFile.Programs))
	for code, program := range programFile.Programs {
		if program.Code == "" {
			program.Code = code
		}
		programs = append(programs, program)
	}

	return New(courses, programs), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Course returns the reference entry for an (uppercase) course code.
// Returns apperror.ErrNotFound for codes absent from the handbook.
func (c *Catalog) Course(code string) (*CourseInfo, error) {
	course, ok := c.courses[code]
	if !ok {
		return nil, apperror.NotFound("course", code)
	}
	return course, nil
}

// Has reports whether the catalog knows the (uppercase) course code.
func (c *Catalog) Has(code string) bool {
	_, ok := c.courses[code]
	return ok
}

// Program returns the reference entry for a program code.
func (c *Catalog) Program(code string) (*ProgramInfo, error) {
	program, ok := c.programs[code]
	if !ok {
		return nil, apperror.NotFound("program", code)
	}
	return program, nil
}

// ProgramCourses resolves a program's course list to full course entries.
// Codes listed by the program but missing from the course table are
// skipped — the published dumps are occasionally out of sync with each
// other, and a partial list beats a 500.
func (c *Catalog) ProgramCourses(code string) ([]CourseInfo, error) {
	program, err := c.Program(code)
	if err != nil {
		return nil, err
	}

	courses := make([]CourseInfo, 0, len(program.Courses))
	for _, courseCode := range program.Courses {
		if course, ok := c.courses[strings.ToUpper(courseCode)]; ok {
			courses = append(courses, *course)
		}
	}
	return courses, nil
}
