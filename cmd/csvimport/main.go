// Command csvimport loads a delimited text file into a relational table as
// described by an import configuration document.
//
//	csvimport validate --config import.json
//	csvimport run --config import.json --metrics-backend pushgateway
//
// Connection parameters come from the environment (DB_KIND, DB_HOST,
// DB_PORT, DB_USER, DB_PASSWORD, DB_DATABASE); a .env file in the working
// directory is loaded first when present.
package main

func main() {
	Execute()
}
