package seed

type Config struct {
	MoodleDir         string   `mapstructure:"moodle-dir"`
	Php               string   `mapstructure:"php"`
	NumStudents       int      `mapstructure:"num-students"`
	NumTeachers       int      `mapstructure:"num-teachers"`
	Password          string   `mapstructure:"password"`
	Courses           []Course `mapstructure:"courses"`
	TeacherRoleId     int      `mapstructure:"teacher-role-id"`
	StudentRoleId     int      `mapstructure:"student-role-id"`
	ContextId         int      `mapstructure:"context-id"`
	TeachersPerCourse int      `mapstructure:"teachers-per-course"`
	StudentsPerCourse int      `mapstructure:"students-per-course"`
	Forums            int      `mapstructure:"forums"`
	Assignments       int      `mapstructure:"assignments"`
}

// role ids 3 and 5 are the editingteacher and student roles of a stock installation
func DefaultConfig() Config {
	return Config{
		MoodleDir:         ".",
		Php:               "php",
		NumStudents:       20,
		NumTeachers:       5,
		Password:          "password",
		Courses:           DefaultCourses(),
		TeacherRoleId:     3,
		StudentRoleId:     5,
		ContextId:         1,
		TeachersPerCourse: 2,
		StudentsPerCourse: 10,
		Forums:            1,
		Assignments:       2,
	}
}

func DefaultCourses() []Course {
	return []Course{
		{ShortName: "PROG101", FullName: "Introducción a la Programación", Category: 1},
		{ShortName: "MATH201", FullName: "Matemáticas Avanzadas", Category: 1},
		{ShortName: "PHYS101", FullName: "Física Básica", Category: 1},
		{ShortName: "HIST301", FullName: "Historia Contemporánea", Category: 1},
		{ShortName: "ENG202", FullName: "Inglés Intermedio", Category: 1},
	}
}

var FirstNames = []string{
	"Juan", "María", "Carlos", "Ana", "Pedro", "Lucía", "Miguel", "Laura",
	"José", "Elena", "Antonio", "Sofía", "David", "Carmen", "Javier", "Isabel",
	"Francisco", "Paula", "Manuel", "Marta", "Alejandro", "Cristina", "Daniel",
	"Natalia", "Fernando", "Andrea", "Pablo", "Beatriz", "Sergio", "Raquel",
}

var LastNames = []string{
	"García", "Rodríguez", "Martínez", "López", "González", "Pérez", "Fernández",
	"Sánchez", "Ramírez", "Torres", "Flores", "Rivera", "Gómez", "Díaz", "Reyes",
	"Morales", "Ortiz", "Cruz", "Castillo", "Romero", "Moreno", "Jiménez", "Vega",
	"Herrera", "Medina", "Castro", "Vargas", "Gutiérrez", "Álvarez", "Mendoza",
}
